//Package store persists pruning artifacts: weight snapshots, accumulated
//weight importances and masks. Files are zlib-compressed streams of TLV
//records so that big models stay small on disk
package store

import (
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

var (
	typHeader = uint8(255)
	typName   = uint8(1)
	typDims   = uint8(2)
	typFloats = uint8(3)
	typBits   = uint8(4)
)

var magic = []byte("SNPR")

var KB = 1024
var MB = 1024 * KB

var MAX_SIZE = 256 * MB //payload cap per record

//write TLV value
func writeTo(c io.Writer, typ uint8, buf []byte) error {
	err := binary.Write(c, binary.LittleEndian, typ) //1-byte type
	if err != nil {
		return err
	}
	err = binary.Write(c, binary.LittleEndian, uint32(len(buf))) //4-byte len
	if err != nil {
		return err
	}
	err = binary.Write(c, binary.LittleEndian, buf)
	return err
}

//reads TLV value of the wanted type
func readFrom(c io.Reader, typ uint8) ([]byte, error) {
	var got uint8
	err := binary.Read(c, binary.LittleEndian, &got)
	if err != nil {
		return nil, err
	}
	if got != typ {
		return nil, fmt.Errorf("record type %d, wanted %d", got, typ)
	}
	var l uint32
	err = binary.Read(c, binary.LittleEndian, &l)
	if err != nil {
		return nil, err
	}
	if int(l) > MAX_SIZE {
		return nil, errors.New("Payload too large")
	}
	buf := make([]byte, l)
	err = binary.Read(c, binary.LittleEndian, buf)
	return buf, err
}

func sortedNames(tensors map[string]*mat.Dense) []string {
	names := lo.Keys(tensors)
	sort.Strings(names)
	return names
}

func writeHeader(w io.Writer, kind uint8, count int) error {
	buf := make([]byte, len(magic)+6)
	copy(buf, magic)
	buf[len(magic)] = 1 //version
	buf[len(magic)+1] = kind
	binary.LittleEndian.PutUint32(buf[len(magic)+2:], uint32(count))
	return writeTo(w, typHeader, buf)
}

func readHeader(r io.Reader, kind uint8) (int, error) {
	buf, err := readFrom(r, typHeader)
	if err != nil {
		return 0, err
	}
	if len(buf) != len(magic)+6 || string(buf[:len(magic)]) != string(magic) {
		return 0, errors.New("not a snapshot file")
	}
	if buf[len(magic)] != 1 {
		return 0, fmt.Errorf("snapshot version %d not supported", buf[len(magic)])
	}
	if buf[len(magic)+1] != kind {
		return 0, fmt.Errorf("snapshot kind %d, wanted %d", buf[len(magic)+1], kind)
	}
	return int(binary.LittleEndian.Uint32(buf[len(magic)+2:])), nil
}

func writeMeta(w io.Writer, name string, m *mat.Dense) (rows, cols int, err error) {
	if err = writeTo(w, typName, []byte(name)); err != nil {
		return
	}
	rows, cols = m.Dims()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, uint32(rows))
	binary.LittleEndian.PutUint32(buf[4:], uint32(cols))
	err = writeTo(w, typDims, buf)
	return
}

func readMeta(r io.Reader) (name string, rows, cols int, err error) {
	buf, err := readFrom(r, typName)
	if err != nil {
		return
	}
	name = string(buf)
	buf, err = readFrom(r, typDims)
	if err != nil {
		return
	}
	if len(buf) != 8 {
		err = errors.New("bad dims record")
		return
	}
	rows = int(binary.LittleEndian.Uint32(buf))
	cols = int(binary.LittleEndian.Uint32(buf[4:]))
	return
}

//WriteTensors streams named float64 matrices as TLV records
func WriteTensors(w io.Writer, tensors map[string]*mat.Dense) error {
	if err := writeHeader(w, typFloats, len(tensors)); err != nil {
		return err
	}
	for _, name := range sortedNames(tensors) {
		m := tensors[name]
		rows, cols, err := writeMeta(w, name, m)
		if err != nil {
			return err
		}
		buf := make([]byte, 8*rows*cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				binary.LittleEndian.PutUint64(buf[8*(i*cols+j):], math.Float64bits(m.At(i, j)))
			}
		}
		if err = writeTo(w, typFloats, buf); err != nil {
			return err
		}
	}
	return nil
}

func ReadTensors(r io.Reader) (map[string]*mat.Dense, error) {
	count, err := readHeader(r, typFloats)
	if err != nil {
		return nil, err
	}
	tensors := make(map[string]*mat.Dense, count)
	for t := 0; t < count; t++ {
		name, rows, cols, err := readMeta(r)
		if err != nil {
			return nil, err
		}
		buf, err := readFrom(r, typFloats)
		if err != nil {
			return nil, err
		}
		if len(buf) != 8*rows*cols {
			return nil, fmt.Errorf("tensor %s: payload is %d bytes, wanted %d", name, len(buf), 8*rows*cols)
		}
		m := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				m.Set(i, j, math.Float64frombits(binary.LittleEndian.Uint64(buf[8*(i*cols+j):])))
			}
		}
		tensors[name] = m
	}
	return tensors, nil
}

//WriteMasks packs 0/1 matrices one bit per weight
func WriteMasks(w io.Writer, masks map[string]*mat.Dense) error {
	if err := writeHeader(w, typBits, len(masks)); err != nil {
		return err
	}
	for _, name := range sortedNames(masks) {
		m := masks[name]
		rows, cols, err := writeMeta(w, name, m)
		if err != nil {
			return err
		}
		buf := make([]byte, (rows*cols+7)/8)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if m.At(i, j) != 0.0 {
					k := i*cols + j
					buf[k>>3] |= 1 << (k & 7)
				}
			}
		}
		if err = writeTo(w, typBits, buf); err != nil {
			return err
		}
	}
	return nil
}

func ReadMasks(r io.Reader) (map[string]*mat.Dense, error) {
	count, err := readHeader(r, typBits)
	if err != nil {
		return nil, err
	}
	masks := make(map[string]*mat.Dense, count)
	for t := 0; t < count; t++ {
		name, rows, cols, err := readMeta(r)
		if err != nil {
			return nil, err
		}
		buf, err := readFrom(r, typBits)
		if err != nil {
			return nil, err
		}
		if len(buf) != (rows*cols+7)/8 {
			return nil, fmt.Errorf("mask %s: payload is %d bytes, wanted %d", name, len(buf), (rows*cols+7)/8)
		}
		m := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				k := i*cols + j
				if buf[k>>3]&(1<<(k&7)) != 0 {
					m.Set(i, j, 1.0)
				}
			}
		}
		masks[name] = m
	}
	return masks, nil
}

//SaveTensors writes tensors to a zlib-compressed file
func SaveTensors(path string, tensors map[string]*mat.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zlib.NewWriter(file)
	if err = WriteTensors(zw, tensors); err != nil {
		file.Close()
		return err
	}
	if err = zw.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func LoadTensors(path string) (map[string]*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	zr, err := zlib.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ReadTensors(zr)
}

func SaveMasks(path string, masks map[string]*mat.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zlib.NewWriter(file)
	if err = WriteMasks(zw, masks); err != nil {
		file.Close()
		return err
	}
	if err = zw.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func LoadMasks(path string) (map[string]*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	zr, err := zlib.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ReadMasks(zr)
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

//FormatSparsity renders a percentage the way it appears in file names:
//70 not 70.0, but 72.5 stays 72.5
func FormatSparsity(sparsity float64) string {
	return strconv.FormatFloat(sparsity, 'g', -1, 64)
}

func InitValuesPath(dir string) string {
	return filepath.Join(dir, "init_values.snap")
}

func TotalGradsPath(dir string) string {
	return filepath.Join(dir, "total_grads.snap")
}

//MaskPath names mask files by their sparsity, with the per-param cap as a
//suffix when one is set, e.g masks_70.snap or masks_70_max95.snap
func MaskPath(dir string, sparsity, maxParamSparsity float64) string {
	name := "masks_" + FormatSparsity(sparsity)
	if maxParamSparsity < 100.0 {
		name += "_max" + FormatSparsity(maxParamSparsity)
	}
	return filepath.Join(dir, name+".snap")
}
