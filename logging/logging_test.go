package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer Log.SetLevel(logrus.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())

	require.NoError(t, SetLevel("WARN"))
	assert.Equal(t, logrus.WarnLevel, Log.GetLevel())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())

	assert.Error(t, SetLevel("verbose"))
}

func TestSetFormat(t *testing.T) {
	defer Log.SetFormatter(&logrus.TextFormatter{})

	require.NoError(t, SetFormat("json"))
	assert.IsType(t, &logrus.JSONFormatter{}, Log.Formatter)

	require.NoError(t, SetFormat("text"))
	assert.IsType(t, &logrus.TextFormatter{}, Log.Formatter)

	assert.Error(t, SetFormat("xml"))
}

func TestFor(t *testing.T) {
	entry := For("consumer")
	assert.Equal(t, "consumer", entry.Data["component"])
}
