package commands

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulheiniger/storm-event-leads/internal/config"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/pipeline"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2024-03-01", "20240301", " 2024-03-01 "} {
		got, err := parseDate("start", in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := parseDate("start", "")
	assert.EqualError(t, err, "--start is required")
	_, err = parseDate("end", "03/01/2024")
	assert.ErrorContains(t, err, "invalid --end")
}

func TestParseWindow_RejectsEmptyWindow(t *testing.T) {
	_, err := parseWindow("2024-03-01", "2024-03-01")
	assert.ErrorIs(t, err, domain.ErrEmptyWindow)

	w, err := parseWindow("2024-01-01", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "20240101_20240301", w.Suffix())
}

func TestBuildPartitions(t *testing.T) {
	w := domain.TimeWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	parts, err := buildPartitions(config.DefaultCatalog(), []string{"ga, in", "GA"}, "", w)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "GA_20240101_20240301", parts[0].Key())
	assert.Equal(t, "IN_20240101_20240301", parts[1].Key())
	assert.Equal(t, DefaultDataset, parts[0].Dataset)
	assert.False(t, parts[0].Region.BBox.IsZero())

	_, err = buildPartitions(config.DefaultCatalog(), []string{" , "}, "", w)
	assert.EqualError(t, err, "at least one region is required")

	_, err = buildPartitions(config.DefaultCatalog(), []string{"ZZ"}, "", w)
	assert.ErrorContains(t, err, `unknown region "ZZ"`)
}

func TestHistoryFlags_PartitionKey(t *testing.T) {
	key, err := historyFlags{}.partitionKey()
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = historyFlags{region: "ky", start: "2024-05-01", end: "2024-05-03"}.partitionKey()
	require.NoError(t, err)
	assert.Equal(t, "KY_20240501_20240503", key)

	_, err = historyFlags{region: "ky", start: "2024-05-03", end: "2024-05-01"}.partitionKey()
	assert.Error(t, err)
}

func TestProgress_Entry(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf)

	p.entry(domain.RunLogEntry{Partition: "GA_20240101_20240301", Step: domain.StepAcquire, Status: domain.StatusOK, Note: "swdi_nx3hail_ga_20240101_20240215_chunk: 120 points"})
	p.entry(domain.RunLogEntry{Partition: "GA_20240101_20240301", Step: domain.StepAlias, Status: domain.StatusSkipped})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "[GA_20240101_20240301] acquire")
	assert.Contains(t, string(lines[0]), "OK")
	assert.Contains(t, string(lines[0]), "120 points")
	assert.Contains(t, string(lines[1]), "SKIPPED")
}

func TestPrintSummary_PartialSuccessExitsCleanly(t *testing.T) {
	var buf bytes.Buffer
	reports := []pipeline.PartitionReport{
		{
			Partition: "GA_20240101_20240301",
			Outcome:   pipeline.OutcomeDone,
			Artifact:  "maps/ga_clusters_20240101_20240301.geojson",
			Steps: []pipeline.StepResult{
				{Step: domain.StepAcquire, Status: domain.StatusOK},
				{Step: domain.StepAcquire, Status: domain.StatusFail},
			},
		},
		{Partition: "IN_20240101_20240301", Outcome: pipeline.OutcomeFailed, Err: errors.New("boom")},
	}

	require.NoError(t, printSummary(&buf, reports))
	out := buf.String()
	assert.Contains(t, out, "DONE")
	assert.Contains(t, out, "(1 sub-chunk(s) failed)")
	assert.Contains(t, out, "-> maps/ga_clusters_20240101_20240301.geojson")
	assert.Contains(t, out, "FAILED  boom")
}

func TestPrintSummary_ReportsSkippedSteps(t *testing.T) {
	var buf bytes.Buffer
	reports := []pipeline.PartitionReport{{
		Partition: "KY_20240101_20240301",
		Outcome:   pipeline.OutcomeDone,
		Steps: []pipeline.StepResult{
			{Step: domain.StepAcquire, Status: domain.StatusSkipped},
			{Step: domain.StepAcquire, Status: domain.StatusSkipped},
			{Step: domain.StepCombine, Status: domain.StatusSkipped},
			{Step: domain.StepPrimaryCluster, Status: domain.StatusSkipped},
			{Step: domain.StepAlias, Status: domain.StatusSkipped},
			{Step: domain.StepSecondaryCluster, Status: domain.StatusSkipped},
			{Step: domain.StepExport, Status: domain.StatusSkipped},
		},
	}}

	require.NoError(t, printSummary(&buf, reports))
	assert.Contains(t, buf.String(), "DONE (5 step(s) skipped)")
	assert.NotContains(t, buf.String(), "->")
}

func TestPrintSummary_AbandonedFails(t *testing.T) {
	var buf bytes.Buffer
	reports := []pipeline.PartitionReport{
		{Partition: "GA_20240101_20240301", Outcome: pipeline.OutcomeDone},
		{Partition: "OH_20240101_20240301", Outcome: pipeline.OutcomeAbandoned},
	}

	err := printSummary(&buf, reports)
	require.ErrorIs(t, err, ErrPartitionsAbandoned)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, buf.String(), "ABANDONED")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Equal(t, "No run log entries.\n", buf.String())

	buf.Reset()
	printHistory(&buf, []domain.RunLogEntry{{
		RunID:     "01HZX",
		Partition: "KY_20240501_20240503",
		Step:      domain.StepPartition,
		Status:    domain.StatusOK,
		Note:      "done",
		Timestamp: time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, buf.String(), "2024-05-03 12:00:00")
	assert.Contains(t, buf.String(), "KY_20240501_20240503")
	assert.Contains(t, buf.String(), "done")
}

func TestNewRunCmd_Defaults(t *testing.T) {
	cmd := NewRunCmd()
	defaults := pipeline.DefaultOptions()

	assert.Equal(t, "45", cmd.Flags().Lookup("chunk-days").DefValue)
	assert.Equal(t, string(defaults.WriteMode), cmd.Flags().Lookup("write-mode").DefValue)
	assert.Equal(t, DefaultDataset, cmd.Flags().Lookup("dataset").DefValue)
	assert.Equal(t, "0.02", cmd.Flags().Lookup("addr-buffer").DefValue)
	assert.Equal(t, "false", cmd.Flags().Lookup("force").DefValue)
}

func TestNewRunCmd_RequiresWindow(t *testing.T) {
	cmd := NewRunCmd()
	cmd.SetArgs([]string{"--regions", "GA"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s)")
}
