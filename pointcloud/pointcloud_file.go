package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pointproc/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// NewFromFile returns a point set read in from the given file.
func NewFromFile(fn string, logger logging.Logger) (*PointSet, error) {
	switch filepath.Ext(fn) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		f, err := os.Open(filepath.Clean(fn))
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		ps, err := ReadPCD(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", fn)
		}
		logger.Debugw("read pcd file", "file", fn, "points", ps.Size())
		return ps, nil
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the active points to a file whose format is picked by extension.
// pcdType is only used for .pcd files.
func WriteToFile(cloud *PointSet, fn string, pcdType PCDType) (err error) {
	switch filepath.Ext(fn) {
	case ".las":
		return WriteToLASFile(cloud, fn)
	case ".pcd":
		//nolint:gosec
		f, ferr := os.Create(fn)
		if ferr != nil {
			return ferr
		}
		defer func() {
			err = multierr.Combine(err, f.Close())
		}()
		w := bufio.NewWriter(f)
		if err := ToPCD(cloud, w, pcdType); err != nil {
			return err
		}
		return w.Flush()
	default:
		return errors.Errorf("do not know how to write file %q", fn)
	}
}

// NewFromLASFile returns a point set from reading a LAS file. Only positions are read.
func NewFromLASFile(fn string, logger logging.Logger) (*PointSet, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	ps := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		ps.Insert(r3.Vector{X: data.X, Y: data.Y, Z: data.Z})
	}
	logger.Debugw("read las file", "file", fn, "points", ps.Size())
	return ps, nil
}

// WriteToLASFile writes the active points out to a LAS file. Normals are not stored.
func WriteToLASFile(cloud *PointSet, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: 0,
	}); err != nil {
		return
	}

	for _, i := range cloud.Active() {
		pos := cloud.Position(i)
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		if err = lf.AddLasPoint(pr0); err != nil {
			return
		}
	}

	// nolint:nakedret
	return
}

// ToPCD writes the active points of cloud to out. Normals are written when any
// active point has one; points without a normal get a zero normal.
func ToPCD(cloud *PointSet, out io.Writer, outputType PCDType) error {
	withNormals := cloud.HasNormals()
	fields := pcdPointOnly
	if withNormals {
		fields = pcdPointNormal
	}
	size := cloud.Size()

	if _, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n",
		fields.names(),
		repeatToken("8", int(fields)),
		repeatToken(string(pcdValFloat), int(fields)),
		repeatToken("1", int(fields)),
	); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		size,
		1,
		size); err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		if _, err := fmt.Fprintf(out, "DATA binary\n"); err != nil {
			return err
		}
	case PCDAscii:
		if _, err := fmt.Fprintf(out, "DATA ascii\n"); err != nil {
			return err
		}
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown PCD type %d", outputType)
	}
	return writePCDData(cloud, out, outputType, fields)
}

func writePCDData(cloud *PointSet, out io.Writer, pcdtype PCDType, fields pcdFieldType) error {
	values := make([]float64, int(fields))
	buf := make([]byte, 8*int(fields))
	tokens := make([]string, int(fields))
	for _, i := range cloud.Active() {
		pos := cloud.Position(i)
		values[0], values[1], values[2] = pos.X, pos.Y, pos.Z
		if fields == pcdPointNormal {
			n, _ := cloud.Normal(i)
			values[3], values[4], values[5] = n.X, n.Y, n.Z
		}

		var err error
		switch pcdtype {
		case PCDBinary:
			for j, v := range values {
				binary.LittleEndian.PutUint64(buf[8*j:], math.Float64bits(v))
			}
			_, err = out.Write(buf)
		case PCDAscii:
			for j, v := range values {
				tokens[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			_, err = fmt.Fprintln(out, strings.Join(tokens, " "))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func repeatToken(token string, n int) string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = token
	}
	return strings.Join(tokens, " ")
}

type pcdFieldType int

const (
	pcdPointOnly   pcdFieldType = 3
	pcdPointNormal pcdFieldType = 6
)

func (f pcdFieldType) names() string {
	if f == pcdPointNormal {
		return "x y z normal_x normal_y normal_z"
	}
	return "x y z"
}

type pcdValType string

const pcdValFloat pcdValType = "F"

type pcdHeader struct {
	fields pcdFieldType
	size   []uint64
	type_  []pcdValType //nolint:revive,stylecheck
	count  []uint64
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

const pcdCommentChar = "#"

// maxPCDPrealloc bounds the capacity reserved from a header's POINTS so a
// corrupt header cannot allocate before any data is read.
const maxPCDPrealloc = 1 << 20

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case pcdPointOnly.names():
			header.fields = pcdPointOnly
		case pcdPointNormal.names():
			header.fields = pcdPointNormal
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
			if header.size[i] != 4 && header.size[i] != 8 {
				return errors.Errorf("unsupported SIZE %d", header.size[i])
			}
		}
	case "TYPE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.type_ = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			header.type_[i] = pcdValType(token)
			if header.type_[i] != pcdValFloat {
				return errors.Errorf("unsupported TYPE %s, only %s is supported", token, pcdValFloat)
			}
		}
	case "COUNT":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid COUNT field %s", token)
			}
			if header.count[i] != 1 {
				return errors.Errorf("unsupported COUNT %d, only 1 is supported", header.count[i])
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		// the viewpoint is ignored; points are kept in the sensor frame
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.height != 0 && header.width > math.MaxInt/header.height {
			return errors.Errorf("WIDTH %d * HEIGHT %d is too large", header.width, header.height)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads a PCD v0.7 stream with fields x y z or x y z normal_x normal_y normal_z.
func ReadPCD(inRaw io.Reader) (*PointSet, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	case PCDCompressed:
		return nil, errors.New("compressed pcd not yet supported")
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (*PointSet, error) {
	ps := NewWithPrealloc(int(min(header.points, maxPCDPrealloc)))
	point := make([]float64, int(header.fields))
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		addPCDPoint(ps, point, header)
	}
	return ps, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (*PointSet, error) {
	ps := NewWithPrealloc(int(min(header.points, maxPCDPrealloc)))
	point := make([]float64, int(header.fields))
	buf := make([]byte, 8)
	for i := 0; i < int(header.points); i++ {
		for j := 0; j < int(header.fields); j++ {
			size := int(header.size[j])
			if _, err := io.ReadFull(in, buf[:size]); err != nil {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			if size == 4 {
				point[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
			} else {
				point[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
			}
		}
		addPCDPoint(ps, point, header)
	}
	return ps, nil
}

func addPCDPoint(ps *PointSet, slice []float64, header pcdHeader) {
	pos := r3.Vector{X: slice[0], Y: slice[1], Z: slice[2]}
	if header.fields == pcdPointOnly {
		ps.Insert(pos)
		return
	}
	n := r3.Vector{X: slice[3], Y: slice[4], Z: slice[5]}
	if n.Norm2() == 0 {
		ps.Insert(pos)
		return
	}
	ps.InsertWithNormal(pos, n)
}
