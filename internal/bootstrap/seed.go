// Package bootstrap loads the YAML seed of humans and bots used to populate
// a fresh deployment.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/botchat/internal/routing"
	"github.com/nextlevelbuilder/botchat/internal/store"
)

// Seed is the on-disk seed file.
//
//	users:
//	  - id: 0190f7a2-...
//	    email: ana@example.com
//	    name: Ana
//	bots:
//	  - name: Nova
//	    persona: You are Nova, an astronomy enthusiast.
//	    model: claude
type Seed struct {
	Users []SeedUser `yaml:"users"`
	Bots  []SeedBot  `yaml:"bots"`
}

type SeedUser struct {
	ID             string  `yaml:"id"`
	Email          string  `yaml:"email"`
	Name           string  `yaml:"name"`
	ProfilePicture *string `yaml:"profile_picture,omitempty"`
}

type SeedBot struct {
	Name           string  `yaml:"name"`
	Persona        string  `yaml:"persona"`
	Model          string  `yaml:"model,omitempty"`
	ProfilePicture *string `yaml:"profile_picture,omitempty"`
}

// Target is the subset of *routing.Service the seeder drives.
type Target interface {
	UpsertUser(ctx context.Context, id uuid.UUID, email, name string, picture *string) (*store.UserData, error)
	CreateBot(ctx context.Context, p routing.CreateBotParams) (*store.UserData, error)
	ListBots(ctx context.Context) ([]store.UserData, error)
}

// Result summarizes an Apply run.
type Result struct {
	Users       int
	BotsCreated int
	BotsSkipped int
}

// LoadSeed reads and parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document. Unknown keys are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, u := range s.Users {
		if _, err := uuid.Parse(u.ID); err != nil {
			return nil, fmt.Errorf("users[%d]: invalid id %q", i, u.ID)
		}
	}
	return &s, nil
}

// Apply upserts every user and creates every bot not already present by
// name. Running it twice is harmless.
func Apply(ctx context.Context, t Target, s *Seed) (Result, error) {
	var res Result
	for _, u := range s.Users {
		if _, err := t.UpsertUser(ctx, uuid.MustParse(u.ID), u.Email, u.Name, u.ProfilePicture); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		res.Users++
	}

	existing, err := t.ListBots(ctx)
	if err != nil {
		return res, fmt.Errorf("list bots: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, b := range existing {
		names[b.Name] = true
	}

	for _, b := range s.Bots {
		if names[strings.TrimSpace(b.Name)] {
			res.BotsSkipped++
			continue
		}
		bot, err := t.CreateBot(ctx, routing.CreateBotParams{
			Name:           b.Name,
			Persona:        b.Persona,
			Model:          b.Model,
			ProfilePicture: b.ProfilePicture,
		})
		if err != nil {
			return res, fmt.Errorf("seed bot %s: %w", b.Name, err)
		}
		names[bot.Name] = true
		res.BotsCreated++
	}
	slog.Info("bootstrap: seed applied", "users", res.Users, "bots_created", res.BotsCreated, "bots_skipped", res.BotsSkipped)
	return res, nil
}
