package workdir_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/GenSpectrum/evobench-sub000/internal/workdir"
)

func TestStatusJSONRoundTrip(t *testing.T) {
	for _, s := range []workdir.Status{
		workdir.StatusCheckedOut,
		workdir.StatusProcessing,
		workdir.StatusError,
		workdir.StatusFinished,
		workdir.StatusExamination,
	} {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var decoded workdir.Status

		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, workdir.StatusCheckedOut.CanBeUsedForJobs())
	assert.True(t, workdir.StatusFinished.CanBeUsedForJobs())
	assert.True(t, workdir.StatusProcessing.CanBeUsedForJobs())
	assert.False(t, workdir.StatusError.CanBeUsedForJobs())
	assert.False(t, workdir.StatusExamination.CanBeUsedForJobs())

	assert.True(t, workdir.StatusError.IsTerminalUserError())
	assert.True(t, workdir.StatusExamination.IsTerminalUserError())
	assert.False(t, workdir.StatusFinished.IsTerminalUserError())
}

func TestStatusYAMLRoundTrip(t *testing.T) {
	rec := workdir.Record{ID: 3, Status: workdir.StatusProcessing, CommitID: "deadbeef"}

	data, err := yaml.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), "processing")

	var decoded workdir.Record

	err = yaml.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestUnmarshalUnknownStatus(t *testing.T) {
	var s workdir.Status

	err := json.Unmarshal([]byte(`"bogus"`), &s)
	assert.Error(t, err)
}
