package routing

import (
	"errors"

	"github.com/nextlevelbuilder/botchat/internal/store"
)

var (
	// ErrStoreUnavailable wraps any persistence failure on the routing path.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBotNotFound means the id is unknown or belongs to a human.
	ErrBotNotFound = errors.New("bot not found")

	// ErrBotNotConfigured means the bot lacks a system prompt or model.
	ErrBotNotConfigured = errors.New("bot not configured")

	// ErrInvalidModel means the bot's model is not a known kind.
	ErrInvalidModel = errors.New("invalid model")

	// ErrClassificationMalformed means the orchestrator output did not parse.
	ErrClassificationMalformed = errors.New("classification malformed")

	// ErrGenerationFailed means the model call failed or timed out.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrUnauthorized means the actor is not a member of the channel.
	ErrUnauthorized = errors.New("not a channel member")

	// ErrSelfRemoval is returned when a member tries to remove themselves.
	ErrSelfRemoval = errors.New("cannot remove yourself")

	// ErrInvalidInput covers request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
