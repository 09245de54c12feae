package pointcloud

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/pointproc/logging"
)

func makeTestSet() *PointSet {
	ps := New()
	ps.InsertWithNormal(r3.Vector{X: 0.125, Y: -3, Z: 1e-7}, r3.Vector{Z: 1})
	ps.Insert(r3.Vector{X: 1.5, Y: 2.25, Z: 1234.5})
	ps.InsertWithNormal(r3.Vector{X: -7, Y: 0.1, Z: 0.2}, r3.Vector{X: 0.6, Y: 0.8})
	ps.Insert(r3.Vector{X: 99, Y: 99, Z: 99})
	ps.Remove(3)
	return ps
}

func checkRoundTrip(t *testing.T, in, out *PointSet) {
	t.Helper()
	test.That(t, out.Size(), test.ShouldEqual, in.Size())
	for j, i := range in.Active() {
		test.That(t, out.Position(j), test.ShouldResemble, in.Position(i))
		inN, inOK := in.Normal(i)
		outN, outOK := out.Normal(j)
		test.That(t, outOK, test.ShouldEqual, inOK)
		test.That(t, outN, test.ShouldResemble, inN)
	}
}

func TestPCDAsciiRoundTrip(t *testing.T) {
	in := makeTestSet()
	var buf bytes.Buffer
	test.That(t, ToPCD(in, &buf, PCDAscii), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z normal_x normal_y normal_z\n")
	test.That(t, buf.String(), test.ShouldContainSubstring, "POINTS 3\n")
	test.That(t, buf.String(), test.ShouldContainSubstring, "DATA ascii\n")

	out, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	checkRoundTrip(t, in, out)
}

func TestPCDBinaryRoundTrip(t *testing.T) {
	in := makeTestSet()
	var buf bytes.Buffer
	test.That(t, ToPCD(in, &buf, PCDBinary), test.ShouldBeNil)
	out, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	checkRoundTrip(t, in, out)
}

func TestPCDPositionsOnly(t *testing.T) {
	in := NewFromPositions([]r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}})
	var buf bytes.Buffer
	test.That(t, ToPCD(in, &buf, PCDAscii), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z\nSIZE 8 8 8\n")
	out, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	checkRoundTrip(t, in, out)
}

func TestReadPCDFloat32(t *testing.T) {
	pcd := `# written by hand
VERSION .7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 2
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 2
DATA ascii
0.5 1 2
3 4 5.25`
	ps, err := ReadPCD(strings.NewReader(pcd))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Size(), test.ShouldEqual, 2)
	test.That(t, ps.Position(1), test.ShouldResemble, r3.Vector{X: 3, Y: 4, Z: 5.25})
}

func TestReadPCDErrors(t *testing.T) {
	header := func(fields, points, data string) string {
		return "VERSION .7\nFIELDS " + fields + "\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n" +
			"WIDTH 1\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS " + points + "\nDATA " + data + "\n"
	}

	_, err := ReadPCD(strings.NewReader(header("x y z rgb", "1", "ascii")))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported pcd fields")

	_, err = ReadPCD(strings.NewReader(header("x y z", "2", "ascii")))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not match WIDTH*HEIGHT")

	_, err = ReadPCD(strings.NewReader(header("x y z", "1", "binary_compressed")))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadPCD(strings.NewReader(header("x y z", "1", "ascii") + "1 2\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unexpected number of fields")

	_, err = ReadPCD(strings.NewReader("VERSION .6\n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadPCDHeaderLimits(t *testing.T) {
	header := func(count, width, height, points, data string) string {
		return "VERSION .7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT " + count + "\n" +
			"WIDTH " + width + "\nHEIGHT " + height + "\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS " + points + "\nDATA " + data + "\n"
	}
	const huge = "4611686018427387904"

	// a header claiming far more points than the stream holds fails on the data
	_, err := ReadPCD(strings.NewReader(header("1 1 1", huge, "1", huge, "ascii") + "1 2 3\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reading point 1")

	var data bytes.Buffer
	for _, v := range []float32{1, 2, 3} {
		test.That(t, binary.Write(&data, binary.LittleEndian, v), test.ShouldBeNil)
	}
	_, err = ReadPCD(strings.NewReader(header("1 1 1", huge, "1", huge, "binary") + data.String()))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reading point 1")

	_, err = ReadPCD(strings.NewReader(header("1 1 1", "4294967296", "4294967296", "0", "ascii")))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "too large")

	_, err = ReadPCD(strings.NewReader(header("2 1 1", "1", "1", "1", "binary") + data.String()))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported COUNT 2")

	ps, err := ReadPCD(strings.NewReader(header("1 1 1", "1", "1", "1", "binary") + data.String()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Position(0), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
}

func TestPCDFile(t *testing.T) {
	logger := logging.NewTestLogger(t)
	in := makeTestSet()
	fn := filepath.Join(t.TempDir(), "cloud.pcd")
	test.That(t, WriteToFile(in, fn, PCDBinary), test.ShouldBeNil)

	out, err := NewFromFile(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	checkRoundTrip(t, in, out)

	_, err = NewFromFile(filepath.Join(t.TempDir(), "cloud.ply"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, WriteToFile(in, "cloud.xyz", PCDAscii), test.ShouldNotBeNil)
}
