package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RotatingFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freight.log")

	log, closer := New(Options{Level: logrus.InfoLevel, File: path})
	log.WithField("trip_id", 7).Info("trip saved")
	log.Debug("dropped below level")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "trip saved", entry["msg"])
	assert.EqualValues(t, 7, entry["trip_id"])
}

func TestNew_Stderr(t *testing.T) {
	log, closer := New(Options{Level: logrus.WarnLevel})

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.NoError(t, closer.Close())
}
