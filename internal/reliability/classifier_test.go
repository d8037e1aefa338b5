package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("upstream status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestIsOverload(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503 status", statusErr{503}, true},
		{"wrapped 503", fmt.Errorf("complete: %w", statusErr{503}), true},
		{"500 status", statusErr{500}, false},
		{"429 status", statusErr{429}, false},
		{"overloaded message", errors.New("The model is overloaded. Please try again later."), true},
		{"anthropic overloaded body", errors.New(`529 {"type":"error","error":{"type":"overloaded_error"}}`), true},
		{"plain failure", errors.New("invalid api key"), false},
		{"canceled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsOverload(tc.err))
		})
	}
}

func TestLinearBackoff(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Duration(0), LinearBackoff(0, base))
	assert.Equal(t, 1*time.Second, LinearBackoff(1, base))
	assert.Equal(t, 2*time.Second, LinearBackoff(2, base))
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
