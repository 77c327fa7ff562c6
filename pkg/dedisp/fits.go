package dedisp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	fitsBlockSize  = 2880
	fitsRecordSize = 80

	// Upper bound on the data values of one spectrum, keeps NAXISn in a
	// hostile header from sizing a huge allocation.
	maxFitsValues = 1 << 28
)

// FitsMetadata holds parsed FITS header key-value pairs.
type FitsMetadata struct {
	Headers map[string]string
}

// NewFitsMetadata creates an empty FitsMetadata.
func NewFitsMetadata() *FitsMetadata {
	return &FitsMetadata{Headers: make(map[string]string)}
}

func (m *FitsMetadata) GetString(key string) string {
	if v, ok := m.Headers[strings.ToUpper(key)]; ok {
		return v
	}
	return ""
}

func (m *FitsMetadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	// FITS allows Fortran-style exponents
	v = strings.Replace(strings.TrimSpace(v), "D", "E", 1)
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (m *FitsMetadata) GetInt(key string) (int, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

// GetDateTime parses ISO-8601 timestamps with or without a zone.
func (m *FitsMetadata) GetDateTime(key string) (time.Time, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return time.Time{}, false
	}
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (m *FitsMetadata) ObjectName() string    { return m.GetString("OBJECT") }
func (m *FitsMetadata) TelescopeName() string { return m.GetString("TELESCOP") }
func (m *FitsMetadata) ObservationDate() (time.Time, bool) {
	return m.GetDateTime("DATE-OBS")
}

// DynamicSpectrum is a visibility buffer read from a FITS file together with
// the header it came from.
type DynamicSpectrum struct {
	Buffer   *VisibilityBuffer
	Metadata *FitsMetadata
	// Complex is set when the file stored (re, im) pairs.
	Complex bool
}

// ReadDynamicSpectrumFits reads a dynamic spectrum from a FITS primary HDU.
//
// Two layouts are accepted: NAXIS1 = channels and NAXIS2 = time samples
// holding amplitudes, or NAXIS1 = 2 (re, im), NAXIS2 = channels and
// NAXIS3 = time samples holding complex visibilities.
func ReadDynamicSpectrumFits(filePath string) (*DynamicSpectrum, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readDynamicSpectrum(bufio.NewReader(f))
}

// ReadDynamicSpectrumFitsFromBytes reads a dynamic spectrum from memory.
func ReadDynamicSpectrumFitsFromBytes(data []byte) (*DynamicSpectrum, error) {
	return readDynamicSpectrum(bytes.NewReader(data))
}

func readDynamicSpectrum(r io.Reader) (*DynamicSpectrum, error) {
	metadata, err := readFitsHeader(r)
	if err != nil {
		return nil, err
	}

	bitpix, _ := metadata.GetInt("BITPIX")
	naxis, _ := metadata.GetInt("NAXIS")
	n1, _ := metadata.GetInt("NAXIS1")
	n2, _ := metadata.GetInt("NAXIS2")
	n3, _ := metadata.GetInt("NAXIS3")

	var nc, nt, chanAxis, timeAxis int
	isComplex := false
	switch {
	case naxis == 2 && n1 > 0 && n2 > 0:
		nc, nt, chanAxis, timeAxis = n1, n2, 1, 2
	case naxis == 3 && n1 == 2 && n2 > 0 && n3 > 0:
		nc, nt, chanAxis, timeAxis = n2, n3, 2, 3
		isComplex = true
	default:
		return nil, fmt.Errorf("%w: FITS dynamic spectrum with NAXIS=%d, NAXIS1=%d, NAXIS2=%d, NAXIS3=%d",
			ErrUnsupportedFormat, naxis, n1, n2, n3)
	}
	perSample := 1
	if isComplex {
		perSample = 2
	}
	if nc > maxFitsValues/perSample/nt {
		return nil, fmt.Errorf("%w: FITS dynamic spectrum of %d channels x %d samples is too large", ErrUnsupportedFormat, nc, nt)
	}

	freq, err := fitsFrequencyAxis(metadata, chanAxis, nc)
	if err != nil {
		return nil, err
	}
	dt, ok := metadata.GetDouble(fmt.Sprintf("CDELT%d", timeAxis))
	if !ok {
		if dt, ok = metadata.GetDouble("INTTIME"); !ok {
			return nil, fmt.Errorf("%w: no CDELT%d or INTTIME for the time axis", ErrUnsupportedFormat, timeAxis)
		}
	}
	times, err := NewUniformTimeAxis(nt, dt)
	if err != nil {
		return nil, fmt.Errorf("FITS time axis: %w", err)
	}

	bscale, ok := metadata.GetDouble("BSCALE")
	if !ok {
		bscale = 1
	}
	bzero, _ := metadata.GetDouble("BZERO")

	values, err := readFitsData(r, bitpix, nc*nt*perSample, bscale, bzero)
	if err != nil {
		return nil, err
	}

	var buf *VisibilityBuffer
	if isComplex {
		vis := make([]complex64, nc*nt)
		for i := range vis {
			vis[i] = complex(float32(values[2*i]), float32(values[2*i+1]))
		}
		buf, err = NewVisibilityBufferFromComplex(vis, freq, times)
	} else {
		buf, err = NewVisibilityBuffer(values, freq, times)
	}
	if err != nil {
		return nil, fmt.Errorf("FITS data: %w", err)
	}
	return &DynamicSpectrum{Buffer: buf, Metadata: metadata, Complex: isComplex}, nil
}

// fitsFrequencyAxis reads the channel axis from the WCS keywords of axis k,
// or from the SFREQ/SDF pair written by MIRIAD tools.
func fitsFrequencyAxis(m *FitsMetadata, k, nc int) (FrequencyAxis, error) {
	if crval, ok := m.GetDouble(fmt.Sprintf("CRVAL%d", k)); ok {
		cdelt, ok := m.GetDouble(fmt.Sprintf("CDELT%d", k))
		if !ok {
			return FrequencyAxis{}, fmt.Errorf("%w: CRVAL%d without CDELT%d", ErrUnsupportedFormat, k, k)
		}
		crpix, ok := m.GetDouble(fmt.Sprintf("CRPIX%d", k))
		if !ok {
			crpix = 1
		}
		scale := 1.0
		switch strings.ToUpper(m.GetString(fmt.Sprintf("CUNIT%d", k))) {
		case "HZ":
			scale = 1e-9
		case "KHZ":
			scale = 1e-6
		case "MHZ":
			scale = 1e-3
		}
		// channel 0 sits on FITS pixel 1
		start := (crval + (1-crpix)*cdelt) * scale
		return NewFrequencyAxis(start, cdelt*scale, nc)
	}
	sfreq, ok1 := m.GetDouble("SFREQ")
	sdf, ok2 := m.GetDouble("SDF")
	if ok1 && ok2 {
		return NewFrequencyAxis(sfreq, sdf, nc)
	}
	return FrequencyAxis{}, fmt.Errorf("%w: no frequency description (CRVAL%d/CDELT%d or SFREQ/SDF)", ErrUnsupportedFormat, k, k)
}

func readFitsHeader(r io.Reader) (*FitsMetadata, error) {
	metadata := NewFitsMetadata()
	recordBuf := make([]byte, fitsRecordSize)

	for {
		for i := 0; i < fitsBlockSize/fitsRecordSize; i++ {
			if _, err := io.ReadFull(r, recordBuf); err != nil {
				return nil, fmt.Errorf("reading FITS header record: %w", err)
			}
			record := string(recordBuf)
			keyword := strings.TrimSpace(record[:8])

			if keyword == "END" {
				if remaining := 35 - i; remaining > 0 {
					if _, err := io.ReadFull(r, make([]byte, remaining*fitsRecordSize)); err != nil {
						return nil, fmt.Errorf("skipping FITS header padding: %w", err)
					}
				}
				return metadata, nil
			}

			if record[8] == '=' && record[9] == ' ' {
				rawValue := strings.TrimSpace(strings.SplitN(record[10:], "/", 2)[0])
				if strings.HasPrefix(rawValue, "'") {
					// string values may contain a slash
					if end := strings.LastIndex(record[10:], "'"); end > 0 {
						rawValue = strings.TrimSpace(record[10 : 10+end+1])
					}
				}
				if v := parseFitsValue(rawValue); keyword != "" && v != "" {
					metadata.Headers[strings.ToUpper(keyword)] = v
				}
			}
		}
	}
}

func readFitsData(r io.Reader, bitpix, n int, bscale, bzero float64) ([]float64, error) {
	var width int
	switch bitpix {
	case 8:
		width = 1
	case 16:
		width = 2
	case 32, -32:
		width = 4
	case -64:
		width = 8
	default:
		return nil, fmt.Errorf("%w: BITPIX %d", ErrUnsupportedFormat, bitpix)
	}

	rawBytes := make([]byte, n*width)
	if _, err := io.ReadFull(r, rawBytes); err != nil {
		return nil, fmt.Errorf("reading BITPIX %d data: %w", bitpix, err)
	}
	values := make([]float64, n)
	for i := range values {
		var v float64
		switch bitpix {
		case 8:
			v = float64(rawBytes[i])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(rawBytes[i*2:])))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(rawBytes[i*4:])))
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(rawBytes[i*4:])))
		case -64:
			v = math.Float64frombits(binary.BigEndian.Uint64(rawBytes[i*8:]))
		}
		values[i] = v*bscale + bzero
	}
	return values, nil
}

func parseFitsValue(rawValue string) string {
	if rawValue == "" {
		return ""
	}
	if rawValue == "T" {
		return "True"
	}
	if rawValue == "F" {
		return "False"
	}
	if strings.HasPrefix(rawValue, "'") {
		endQuote := strings.LastIndex(rawValue, "'")
		if endQuote > 0 {
			return strings.TrimRight(rawValue[1:endQuote], " ")
		}
		return strings.TrimLeft(strings.TrimRight(rawValue, " "), "'")
	}
	return rawValue
}

// WriteDynamicSpectrumFits writes buf as a BITPIX -64 amplitude spectrum
// with NAXIS1 = channels and NAXIS2 = time samples. The time axis is written
// as a uniform step, so buffers with irregular sampling are rejected, and
// the channels must be contiguous. extra cards (OBJECT, TELESCOP, ...) are
// written as strings.
func WriteDynamicSpectrumFits(w io.Writer, buf *VisibilityBuffer, extra map[string]string) error {
	nt, nc := buf.NumTimes(), buf.NumChannels()
	chans := buf.Freq.Channels
	if len(chans) > 0 && chans[len(chans)-1]-chans[0] != len(chans)-1 {
		return fmt.Errorf("%w: channel selection is not contiguous", ErrUnsupportedFormat)
	}
	dt := 0.0
	if nt > 1 {
		dt = buf.Time.Values[1] - buf.Time.Values[0]
		for i := 2; i < nt; i++ {
			step := buf.Time.Values[i] - buf.Time.Values[i-1]
			if math.Abs(step-dt) > 1e-9*math.Max(1, math.Abs(dt)) {
				return fmt.Errorf("%w: time axis is not uniform at sample %d", ErrUnsupportedFormat, i)
			}
		}
	}

	var hdr bytes.Buffer
	card := func(key, value string) {
		fmt.Fprintf(&hdr, "%-80s", fmt.Sprintf("%-8s= %20s", key, value))
	}
	strCard := func(key, value string) {
		fmt.Fprintf(&hdr, "%-80s", fmt.Sprintf("%-8s= '%-8s'", key, strings.ReplaceAll(value, "'", "''")))
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'E', -1, 64) }

	card("SIMPLE", "T")
	card("BITPIX", "-64")
	card("NAXIS", "2")
	card("NAXIS1", strconv.Itoa(nc))
	card("NAXIS2", strconv.Itoa(nt))
	strCard("CTYPE1", "FREQ")
	strCard("CUNIT1", "GHz")
	card("CRPIX1", num(1))
	card("CRVAL1", num(buf.Freq.Values[0]))
	card("CDELT1", num(buf.Freq.Step))
	strCard("CTYPE2", "TIME")
	strCard("CUNIT2", "s")
	card("CDELT2", num(dt))
	card("INTTIME", num(dt))
	for key, value := range extra {
		if len(key) > 8 {
			return fmt.Errorf("%w: header keyword %q is longer than 8 characters", ErrUnsupportedFormat, key)
		}
		strCard(strings.ToUpper(key), value)
	}
	fmt.Fprintf(&hdr, "%-80s", "END")
	padFits(&hdr, ' ')

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("writing FITS header: %w", err)
	}

	var data bytes.Buffer
	data.Grow(nt * nc * 8)
	var word [8]byte
	for t := 0; t < nt; t++ {
		for _, v := range buf.Row(t) {
			binary.BigEndian.PutUint64(word[:], math.Float64bits(v))
			data.Write(word[:])
		}
	}
	padFits(&data, 0)
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("writing FITS data: %w", err)
	}
	return nil
}

func padFits(b *bytes.Buffer, fill byte) {
	if rem := b.Len() % fitsBlockSize; rem != 0 {
		b.Write(bytes.Repeat([]byte{fill}, fitsBlockSize-rem))
	}
}
