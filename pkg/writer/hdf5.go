package writer

import (
	hdf5 "github.com/jmbenlloch/go-hdf5"
)

type ArmHDF5 struct {
	arm_number int64
	n_tags     int32
}

func openFile(fname string) (*hdf5.File, error) {
	return hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
}

// createExtendable creates a dataset with an unlimited first dimension.
// cols == 0 gives a 1d dataset.
func createExtendable(group *hdf5.Group, name string, dtype *hdf5.Datatype, cols int, compression int) (*hdf5.Dataset, error) {
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	dims := []uint{0}
	maxDims := []uint{uint(unlimitedDims)}
	chunks := []uint{32768}
	if cols > 0 {
		dims = []uint{0, uint(cols)}
		maxDims = []uint{uint(unlimitedDims), uint(cols)}
		chunks = []uint{1, uint(cols)}
	}

	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, err
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, err
	}
	defer plist.Close()

	if err := plist.SetChunk(chunks); err != nil {
		return nil, err
	}
	plist.SetDeflate(compression)

	return group.CreateDatasetWith(name, dtype, fileSpace, plist)
}

func createFixed(group *hdf5.Group, name string, dtype *hdf5.Datatype, dims []uint) (*hdf5.Dataset, error) {
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return nil, err
	}
	defer space.Close()
	return group.CreateDataset(name, dtype, space)
}

// appendRows extends dataset by the rows in data and writes them at offset.
// rowLen is 0 for 1d datasets.
func appendRows[T any](dataset *hdf5.Dataset, data []T, offset int, rowLen int) error {
	if len(data) == 0 {
		return nil
	}
	var newSize, start, count []uint
	if rowLen == 0 {
		n := uint(len(data))
		newSize = []uint{uint(offset) + n}
		start = []uint{uint(offset)}
		count = []uint{n}
	} else {
		rows := uint(len(data) / rowLen)
		newSize = []uint{uint(offset) + rows, uint(rowLen)}
		start = []uint{uint(offset), 0}
		count = []uint{rows, uint(rowLen)}
	}

	if err := dataset.Resize(newSize); err != nil {
		return err
	}
	fileSpace := dataset.Space()
	defer fileSpace.Close()
	if err := fileSpace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}

	memSpace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return err
	}
	defer memSpace.Close()

	return dataset.WriteSubset(&data, memSpace, fileSpace)
}
