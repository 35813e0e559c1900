package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvilar/thermolog/internal/jobs"
)

func writeHelperScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestBridge(repo *stubReadingRepo, script string, timeout time.Duration) *FallbackBridge {
	return NewFallbackBridge(repo, jobs.NewMemoryProgressCache(), time.Hour, "/bin/sh", script, timeout, zerolog.Nop())
}

func TestFallbackProcessesLineDelimitedOutput(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
printf '{"timestamp":"2024-05-10 08:00:00","temperature":21.5,"humidity":55}\n'
printf '{"timestamp":"2024-05-10 08:05:00","temperature":21.7}\n'
printf 'this is not json\n'
printf '{"error":"unreadable cell"}\n'
printf '{"timestamp":"2024-05-10 08:10:00","temperature":200}\n'
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 10*time.Second)

	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "elitech_export.xls", testSensor(), EngineOptions{ChunkSize: 100, JobID: "job-1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RecordsProcessed)
	assert.Equal(t, 2, result.RecordsFailed)
	assert.Len(t, repo.insertedReadings(), 2)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "unreadable cell")
	assert.Contains(t, result.Errors[1], "200")
}

func TestFallbackCountsHelperErrorLinesAsFailed(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
printf '{"error":"unreadable cell"}\n'
printf '{"timestamp":"2024-05-10 08:00:00","temperature":21.5,"humidity":55}\n'
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 10*time.Second)

	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "export.xls", testSensor(), EngineOptions{ChunkSize: 100, JobID: "job-err"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RecordsProcessed)
	assert.Equal(t, 1, result.RecordsFailed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Row 1")
	assert.Contains(t, result.Errors[0], "unreadable cell")
}

func TestFallbackFlushesAtChunkBoundaries(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
i=0
while [ $i -lt 5 ]; do
  printf '{"timestamp":"2024-05-10 08:00:00","temperature":20}\n'
  i=$((i+1))
done
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 10*time.Second)

	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "export.xls", testSensor(), EngineOptions{ChunkSize: 2, JobID: "job-2"})
	require.NoError(t, err)

	assert.Equal(t, 5, result.RecordsProcessed)
	sizes := repo.batchSizes()
	require.NotEmpty(t, sizes)
	for _, size := range sizes {
		assert.LessOrEqual(t, size, 2)
	}
}

func TestFallbackTimeoutKillsSubprocess(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
sleep 30
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 300*time.Millisecond)

	started := time.Now()
	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "export.xls", testSensor(), EngineOptions{})
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.False(t, result.Success)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestFallbackSurfacesStderrOnFailure(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
printf '{"timestamp":"2024-05-10 08:00:00","temperature":20}\n'
echo "unreadable workbook structure" 1>&2
exit 3
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 10*time.Second)

	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "export.xls", testSensor(), EngineOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable workbook structure")
	assert.False(t, result.Success)
}

func TestFallbackPassesVendorSheet(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
if [ "$2" != "Lista" ]; then
  echo "expected sheet Lista, got $2" 1>&2
  exit 1
fi
printf '{"timestamp":"2024-05-10 08:00:00","temperature":20}\n'
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 10*time.Second)

	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "elitech_export.xls", testSensor(), EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsProcessed)
}

func TestFallbackOmitsSheetForUnknownVendor(t *testing.T) {
	script := writeHelperScript(t, `#!/bin/sh
if [ -n "$2" ]; then
  echo "unexpected sheet argument $2" 1>&2
  exit 1
fi
printf '{"timestamp":"2024-05-10 08:00:00","temperature":20}\n'
`)

	repo := &stubReadingRepo{}
	bridge := newTestBridge(repo, script, 10*time.Second)

	result, err := bridge.ProcessLegacy(context.Background(), "/tmp/ignored.xls", "mystery_export.xls", testSensor(), EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsProcessed)
}
