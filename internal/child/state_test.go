package child

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOrdering(t *testing.T) {
	states := States()
	for i := 1; i < len(states); i++ {
		assert.Less(t, states[i-1], states[i])
	}
	assert.Equal(t, "restarting", StateRestarting.String())
	assert.Equal(t, "unknown", State(0).String())
}

func TestStateJSON(t *testing.T) {
	b, err := json.Marshal(map[string]State{"s": StateStopping})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"stopping"}`, string(b))
}
