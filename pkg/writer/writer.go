package writer

import (
	"errors"
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	timetagger "github.com/next-exp/timetagger_go/pkg"
)

// Writer stores a time tag stream and its histograms in an HDF5 file:
//
//	/Tags/arms          (arm_number, n_tags) per arm event
//	/Tags/tags          every tag in seconds, in arm event order
//	/Histogram/edges    bin edges
//	/Histogram/counts   experiments x bins
type Writer struct {
	File           *hdf5.File
	Filename       string
	TagsGroup      *hdf5.Group
	HistogramGroup *hdf5.Group
	ArmTable       *hdf5.Dataset
	TagArray       *hdf5.Dataset
	armType        *hdf5.Datatype
	ArmCounter     int
	TagCounter     int
	histograms     int
}

func NewWriter(filename string, compression int) (*Writer, error) {
	w := &Writer{Filename: filename}
	var err error

	if w.File, err = openFile(filename); err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	if w.TagsGroup, err = w.File.CreateGroup("Tags"); err != nil {
		w.File.Close()
		return nil, &ErrCreateGroup{GroupName: "Tags", Err: err}
	}
	if w.HistogramGroup, err = w.File.CreateGroup("Histogram"); err != nil {
		w.Close()
		return nil, &ErrCreateGroup{GroupName: "Histogram", Err: err}
	}

	if w.armType, err = hdf5.NewDatatypeFromValue(ArmHDF5{}); err != nil {
		w.Close()
		return nil, &ErrCreateTable{TableName: "arms", Err: err}
	}
	if w.ArmTable, err = createExtendable(w.TagsGroup, "arms", w.armType, 0, compression); err != nil {
		w.Close()
		return nil, &ErrCreateTable{TableName: "arms", Err: err}
	}
	if w.TagArray, err = createExtendable(w.TagsGroup, "tags", hdf5.T_NATIVE_DOUBLE, 0, compression); err != nil {
		w.Close()
		return nil, &ErrCreateTable{TableName: "tags", Err: err}
	}

	timetagger.Info(fmt.Sprintf("Created file %s", filename), "writer")
	return w, nil
}

// WriteArms appends arm events and their tags (in seconds).
func (w *Writer) WriteArms(arms []int64, tags [][]float64) error {
	if len(arms) != len(tags) {
		return fmt.Errorf("got %d arm events and %d tag groups", len(arms), len(tags))
	}
	rows := make([]ArmHDF5, len(arms))
	flat := make([]float64, 0)
	for i, n := range arms {
		rows[i] = ArmHDF5{arm_number: int64(w.ArmCounter + i), n_tags: int32(n)}
		flat = append(flat, tags[i]...)
	}

	if err := appendRows(w.ArmTable, rows, w.ArmCounter, 0); err != nil {
		return fmt.Errorf("error writing arm events: %w", err)
	}
	if err := appendRows(w.TagArray, flat, w.TagCounter, 0); err != nil {
		return fmt.Errorf("error writing tags: %w", err)
	}
	w.ArmCounter += len(arms)
	w.TagCounter += len(flat)
	return nil
}

// WriteHistogram stores the current state of h. It can only be called once
// per file.
func (w *Writer) WriteHistogram(h *timetagger.Histogram) error {
	if w.histograms > 0 {
		return errors.New("histogram already written")
	}
	edges := h.Edges()
	counts := h.Counts()
	nBins := len(edges) - 1

	edgeSet, err := createFixed(w.HistogramGroup, "edges", hdf5.T_NATIVE_DOUBLE, []uint{uint(len(edges))})
	if err != nil {
		return &ErrCreateTable{TableName: "edges", Err: err}
	}
	defer edgeSet.Close()
	if err := edgeSet.Write(&edges); err != nil {
		return fmt.Errorf("error writing bin edges: %w", err)
	}

	flat := make([]float64, 0, len(counts)*nBins)
	for _, row := range counts {
		flat = append(flat, row...)
	}
	countSet, err := createFixed(w.HistogramGroup, "counts", hdf5.T_NATIVE_DOUBLE, []uint{uint(len(counts)), uint(nBins)})
	if err != nil {
		return &ErrCreateTable{TableName: "counts", Err: err}
	}
	defer countSet.Close()
	if err := countSet.Write(&flat); err != nil {
		return fmt.Errorf("error writing histogram counts: %w", err)
	}
	w.histograms++
	return nil
}

func (w *Writer) Close() error {
	timetagger.Info(fmt.Sprintf("Closing file %s", w.Filename), "writer")
	var errs []error

	if w.ArmTable != nil {
		if err := w.ArmTable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing arm table: %w", err))
		}
	}
	if w.TagArray != nil {
		if err := w.TagArray.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing tag array: %w", err))
		}
	}
	if w.armType != nil {
		if err := w.armType.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing arm datatype: %w", err))
		}
	}
	if w.TagsGroup != nil {
		if err := w.TagsGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing tags group: %w", err))
		}
	}
	if w.HistogramGroup != nil {
		if err := w.HistogramGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing histogram group: %w", err))
		}
	}
	if err := w.File.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
