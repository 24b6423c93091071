package writer

import (
	"path/filepath"
	"testing"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	timetagger "github.com/next-exp/timetagger_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "tags.h5")
	w, err := NewWriter(filename, 4)
	require.NoError(t, err)

	require.NoError(t, w.WriteArms([]int64{2, 0}, [][]float64{{1e-9, 2e-9}, {}}))
	require.NoError(t, w.WriteArms([]int64{1}, [][]float64{{3e-9}}))
	require.NoError(t, w.WriteArms(nil, nil))
	assert.Equal(t, 3, w.ArmCounter)
	assert.Equal(t, 3, w.TagCounter)

	assert.Error(t, w.WriteArms([]int64{1}, nil), "arm events and tag groups must match")

	h, err := timetagger.NewHistogram(2, 1e-9, 4)
	require.NoError(t, err)
	h.BinTags([][]float64{{1.5e-9, 2.5e-9}, {}, {3.5e-9}})
	require.NoError(t, w.WriteHistogram(h))
	assert.Error(t, w.WriteHistogram(h))
	require.NoError(t, w.Close())

	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	tags := readDoubles(t, f, "Tags/tags")
	assert.InDeltaSlice(t, []float64{1e-9, 2e-9, 3e-9}, tags, 1e-20)

	edges := readDoubles(t, f, "Histogram/edges")
	assert.InDeltaSlice(t, h.Edges(), edges, 1e-20)

	counts := readDoubles(t, f, "Histogram/counts")
	assert.Equal(t, []float64{0, 1, 1, 1, 0, 0, 0, 0}, counts)
}

func TestNewWriterBadPath(t *testing.T) {
	_, err := NewWriter(filepath.Join(t.TempDir(), "missing", "tags.h5"), 0)
	var openErr *ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}

func readDoubles(t *testing.T, f *hdf5.File, name string) []float64 {
	t.Helper()
	dataset, err := f.OpenDataset(name)
	require.NoError(t, err)
	defer dataset.Close()

	space := dataset.Space()
	defer space.Close()
	data := make([]float64, space.SimpleExtentNPoints())
	require.NoError(t, dataset.Read(&data))
	return data
}
