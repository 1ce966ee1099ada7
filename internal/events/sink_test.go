package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minidao/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNewSinkFactory(t *testing.T) {
	logger := testLogger()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil配置返回noop", nil, false},
		{"空格式返回noop", &Config{Format: ""}, false},
		{"none格式返回noop", &Config{Format: "none"}, false},
		{"jsonl格式", &Config{Format: "jsonl", OutputDir: t.TempDir()}, false},
		{"未知格式报错", &Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSink(tt.cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, sink)
			sink.Close()
		})
	}
}

func TestNoopSink(t *testing.T) {
	sink := &NoopSink{}
	assert.NoError(t, sink.Publish(&models.SessionEvent{Kind: models.EventContractSelected}))
	assert.NoError(t, sink.Publish(nil))
	assert.NoError(t, sink.Close())
}

func TestFileSinkPublish(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, testLogger())
	require.NoError(t, err)

	pid := int64(3)
	events := []*models.SessionEvent{
		{Kind: models.EventContractSelected, Contract: "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton", Generation: 1, Timestamp: time.Now()},
		{Kind: models.EventVoteSubmitted, Contract: "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton", ProposalID: &pid, Timestamp: time.Now()},
	}
	for _, ev := range events {
		require.NoError(t, sink.Publish(ev))
	}
	require.NoError(t, sink.Publish(nil))
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	var lines []models.SessionEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev models.SessionEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		lines = append(lines, ev)
	}

	require.Len(t, lines, 2)
	assert.Equal(t, models.EventContractSelected, lines[0].Kind)
	assert.Equal(t, models.EventVoteSubmitted, lines[1].Kind)
	require.NotNil(t, lines[1].ProposalID)
	assert.Equal(t, int64(3), *lines[1].ProposalID)
}
