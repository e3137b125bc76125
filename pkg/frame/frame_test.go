package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urlFrame(scheme byte, body ...byte) []byte {
	return append([]byte{TypeURL, 0xeb, scheme}, body...)
}

func TestURLExpansionCodes(t *testing.T) {
	require.Len(t, urlExpansions, 14)
	for code, literal := range urlExpansions {
		data := urlFrame(0x02, append([]byte("abc"), byte(code))...)
		f, err := DecodeURLFrame(data)
		require.NoError(t, err, "code %02X", code)
		assert.Equal(t, "http://abc"+literal, f.URL, "code %02X", code)
		assert.Equal(t, int8(-21), f.TxPower)
	}
}

func TestURLSchemes(t *testing.T) {
	for code, scheme := range urlSchemes {
		f, err := DecodeURLFrame(urlFrame(byte(code), []byte("hax")...))
		require.NoError(t, err)
		assert.Equal(t, scheme+"hax", f.URL)
		assert.Equal(t, scheme, f.Scheme)
	}
}

func TestURLLocationFrame(t *testing.T) {
	f, err := DecodeFrame(urlFrame(0x02, []byte("HAX/F1/KITCHEN")...))
	require.NoError(t, err)
	u, ok := f.(*URLFrame)
	require.True(t, ok)
	assert.Equal(t, "http://HAX/F1/KITCHEN", u.URL)
	assert.Equal(t, "HAX", u.Host)
	assert.Equal(t, "/F1/KITCHEN", u.Path)
	assert.Equal(t, u.URL, u.String())
}

func TestURLHostWithExpansion(t *testing.T) {
	f, err := DecodeURLFrame(urlFrame(0x00, append([]byte("divertsy"), 0x00, 'f', '1')...))
	require.NoError(t, err)
	assert.Equal(t, "http://www.divertsy.com/f1", f.URL)
	assert.Equal(t, "www.divertsy.com", f.Host)
}

func TestURLLiteralBytes(t *testing.T) {
	cases := []struct {
		name string
		body []byte
		url  string
		host string
		path string
	}{
		{"percent", []byte("HAX/50%"), "http://HAX/50%", "HAX", "/50%"},
		{"high byte", []byte{'H', 'A', 'X', '/', 0x80}, "http://HAX/\u0080", "HAX", "/\u0080"},
		{"delete", []byte{'H', 'A', 'X', 0x7f}, "http://HAX\x7f", "HAX\x7f", ""},
		{"bad escape in host", []byte("H%zz/f1"), "http://H%zz/f1", "H%zz", "/f1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f, err := DecodeFrame(urlFrame(0x02, c.body...))
			require.NoError(t, err)
			u, ok := f.(*URLFrame)
			require.True(t, ok)
			assert.Equal(t, c.url, u.URL)
			assert.Equal(t, c.host, u.Host)
			assert.Equal(t, c.path, u.Path)
		})
	}
}

func TestURLUnparseableKeepsWWWHost(t *testing.T) {
	f, err := DecodeURLFrame(urlFrame(0x00, append([]byte("hax"), 0x07, '/', '5', '0', '%')...))
	require.NoError(t, err)
	assert.Equal(t, "http://www.hax.com/50%", f.URL)
	assert.Equal(t, "www.hax.com", f.Host)
	assert.Equal(t, "/50%", f.Path)
}

func TestMalformedURLFrames(t *testing.T) {
	cases := map[string][]byte{
		"too short":      {TypeURL, 0x00},
		"unknown scheme": urlFrame(0x04, 'a'),
		"reserved byte":  urlFrame(0x02, 'a', 0x15),
		"space":          urlFrame(0x02, 'a', 0x20),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame(data)
			require.Error(t, err)
			assert.Equal(t, CategoryURL, CategoryOf(err))
			assert.True(t, errors.Is(err, ErrMalformedURL))
		})
	}
}

func TestEncodeURLBody(t *testing.T) {
	body := EncodeURLBody("hax.com/f1.org")
	assert.Equal(t, []byte{'h', 'a', 'x', 0x00, 'f', '1', 0x08}, body)

	f, err := DecodeURLFrame(urlFrame(0x03, body...))
	require.NoError(t, err)
	assert.Equal(t, "https://hax.com/f1.org", f.URL)
}

func TestUIDFrame(t *testing.T) {
	data := []byte{TypeUID, 0xec,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
		0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6,
		0x00, 0x00}
	f, err := DecodeFrame(data)
	require.NoError(t, err)
	uid, ok := f.(*UIDFrame)
	require.True(t, ok)
	assert.Equal(t, int8(-20), uid.TxPower)
	assert.Equal(t, "0102030405060708090a", uid.NamespaceHex())
	assert.Equal(t, "a1a2a3a4a5a6", uid.InstanceHex())

	_, err = DecodeFrame(data[:17])
	assert.Equal(t, CategoryUID, CategoryOf(err))
}

func TestTLMFrame(t *testing.T) {
	data := []byte{TypeTLM, 0x00,
		0x0b, 0xb8,
		0x15, 0x80,
		0x00, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x03, 0xe8}
	f, err := DecodeFrame(data)
	require.NoError(t, err)
	tlm, ok := f.(*TLMFrame)
	require.True(t, ok)
	assert.Equal(t, uint16(3000), tlm.BatteryMV)
	assert.InDelta(t, 21.5, tlm.Temperature, 1e-9)
	assert.Equal(t, uint32(256), tlm.PDUCount)
	assert.Equal(t, 100*time.Second, tlm.Uptime())

	data[4], data[5] = 0xff, 0x80
	cold, err := DecodeTLMFrame(data)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, cold.Temperature, 1e-9)
}

func TestMalformedTLMFrames(t *testing.T) {
	_, err := DecodeFrame([]byte{TypeTLM, 0x00, 0x01})
	assert.Equal(t, CategoryTLM, CategoryOf(err))

	encrypted := make([]byte, tlmLength)
	encrypted[0], encrypted[1] = TypeTLM, 0x01
	_, err = DecodeFrame(encrypted)
	assert.Equal(t, CategoryTLM, CategoryOf(err))
	assert.True(t, errors.Is(err, ErrMalformedTLM))
}

func TestInvalidFrameType(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff, 0x01, 0x02})
	require.Error(t, err)
	assert.Equal(t, CategoryInvalidFrameType, CategoryOf(err))
	assert.Equal(t, "invalid frame type byte FF", err.Error())

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, byte(0xff), decodeErr.FrameType)
}

func TestNullServiceData(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.True(t, errors.Is(err, ErrNullServiceData))
	assert.False(t, errors.Is(err, ErrInvalidFrameType))
	assert.Equal(t, CategoryNone, CategoryOf(errors.New("other")))
}
