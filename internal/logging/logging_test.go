package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

var (
	_ cron.Logger                 = Cron{}
	_ retryablehttp.LeveledLogger = Retry{}
)

func TestAdaptersWriteStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	Retry{Component: "registry"}.Warn("retrying", "url", "https://example", "attempt", 2)
	Cron{Component: "scheduler"}.Error(errors.New("boom"), "job failed", "entry", 1)

	out := buf.String()
	assert.Contains(t, out, `"component":"registry"`)
	assert.Contains(t, out, `"url":"https://example"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"entry":1`)
}
