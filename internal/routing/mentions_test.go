package routing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestExtractMentions(t *testing.T) {
	nova := Bot{ID: uuid.New(), Name: "Nova"}
	echo := Bot{ID: uuid.New(), Name: "Echo"}
	al := Bot{ID: uuid.New(), Name: "Al"}
	alice := Bot{ID: uuid.New(), Name: "Alice"}
	unnamed := Bot{ID: uuid.New(), Name: ""}

	tests := []struct {
		name   string
		text   string
		roster []Bot
		want   []uuid.UUID
	}{
		{"single mention", "hey @Nova can you help?", []Bot{nova, echo}, []uuid.UUID{nova.ID}},
		{"no at sign", "lol nice", []Bot{nova, echo}, nil},
		{"roster order", "@Echo and @Nova", []Bot{nova, echo}, []uuid.UUID{nova.ID, echo.ID}},
		{"case sensitive", "hey @nova", []Bot{nova}, nil},
		{"no word boundary", "@Novastar", []Bot{nova}, []uuid.UUID{nova.ID}},
		{"prefix collision is kept", "hi @Alice", []Bot{al, alice}, []uuid.UUID{al.ID, alice.ID}},
		{"repeated mention once", "@Nova @Nova", []Bot{nova}, []uuid.UUID{nova.ID}},
		{"duplicate roster entry once", "@Nova", []Bot{nova, nova}, []uuid.UUID{nova.ID}},
		{"empty name never matches", "@ hello @", []Bot{unnamed}, nil},
		{"empty roster", "@Nova", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMentions(tt.text, tt.roster))
		})
	}
}
