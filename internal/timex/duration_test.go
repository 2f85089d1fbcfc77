package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type holder struct {
	TTL Duration `json:"ttl" yaml:"ttl"`
}

func TestDuration_JSON(t *testing.T) {
	var h holder
	require.NoError(t, json.Unmarshal([]byte(`{"ttl":"1h"}`), &h))
	assert.Equal(t, time.Hour, h.TTL.Duration)

	require.NoError(t, json.Unmarshal([]byte(`{"ttl":1500000000}`), &h))
	assert.Equal(t, 1500*time.Millisecond, h.TTL.Duration)

	require.Error(t, json.Unmarshal([]byte(`{"ttl":"soon"}`), &h))
	require.Error(t, json.Unmarshal([]byte(`{"ttl":true}`), &h))

	out, err := json.Marshal(holder{TTL: Duration{15 * time.Minute}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ttl":"15m0s"}`, string(out))
}

func TestDuration_YAML(t *testing.T) {
	var h holder
	require.NoError(t, yaml.Unmarshal([]byte("ttl: 30m\n"), &h))
	assert.Equal(t, 30*time.Minute, h.TTL.Duration)

	require.NoError(t, yaml.Unmarshal([]byte("ttl: 1000\n"), &h))
	assert.Equal(t, time.Microsecond, h.TTL.Duration)

	require.Error(t, yaml.Unmarshal([]byte("ttl: later\n"), &h))
}

func TestEpochMillis(t *testing.T) {
	assert.Equal(t, int64(1_700_000_000_123), EpochMillis(time.UnixMilli(1_700_000_000_123)))
}
