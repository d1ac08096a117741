package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7", DefaultPersona.AcceptLanguage())
	assert.Equal(t, "", Persona{}.AcceptLanguage())
	assert.Equal(t, "en", Persona{Languages: []string{"en"}}.AcceptLanguage())
}

func TestApply(t *testing.T) {
	t.Run("full persona", func(t *testing.T) {
		core, observedLogs := observer.New(zap.DebugLevel)
		tasks := Apply(DefaultPersona, zap.New(core))

		// user agent, webdriver override, timezone, locale, headers
		assert.Len(t, tasks, 5)
		require.Equal(t, 1, observedLogs.Len())
		assert.Equal(t, "Applying browser persona", observedLogs.All()[0].Message)
	})

	t.Run("minimal persona", func(t *testing.T) {
		tasks := Apply(Persona{UserAgent: "ua"}, nil)
		assert.Len(t, tasks, 2)
	})
}
