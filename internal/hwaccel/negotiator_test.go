package hwaccel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type format int

const (
	formatYUV format = iota + 1
	formatCUDA
	formatVAAPI
	formatVDPAU
)

type device struct{ name string }

func backends() []Backend[format] {
	return []Backend[format]{
		{Name: "cuda", PixelFormat: formatCUDA, DeviceContext: true},
		{Name: "vdpau", PixelFormat: formatVDPAU, DeviceContext: false},
		{Name: "vaapi", PixelFormat: formatVAAPI, DeviceContext: true},
	}
}

func TestNegotiateFirstWorkingBackend(t *testing.T) {
	var tried []string
	n := Negotiate(backends(), func(b Backend[format]) (*device, error) {
		tried = append(tried, b.Name)
		if b.Name == "cuda" {
			return nil, errors.New("no cuda device")
		}
		return &device{name: b.Name}, nil
	}, nil)

	require.NotNil(t, n)
	assert.Equal(t, []string{"cuda", "vaapi"}, tried)
	assert.Equal(t, "vaapi", n.Device.name)
	assert.Equal(t, formatVAAPI, n.Backend.PixelFormat)

	f, ok := n.Resolve([]format{formatYUV, formatVAAPI})
	assert.True(t, ok)
	assert.Equal(t, formatVAAPI, f)

	_, ok = n.Resolve([]format{formatYUV, formatCUDA})
	assert.False(t, ok)

	assert.True(t, n.OnDevice(formatVAAPI))
	assert.False(t, n.OnDevice(formatYUV))
}

func TestNegotiateNoDevice(t *testing.T) {
	n := Negotiate(backends(), func(b Backend[format]) (*device, error) {
		return nil, errors.New("unavailable")
	}, nil)

	assert.Nil(t, n)

	// software path: nothing is on the device and the resolver refuses
	assert.False(t, n.OnDevice(formatYUV))
	_, ok := n.Resolve([]format{formatYUV})
	assert.False(t, ok)
}

func TestNegotiateSkipsBackendsWithoutDeviceContext(t *testing.T) {
	opened := 0
	n := Negotiate([]Backend[format]{{Name: "vdpau", PixelFormat: formatVDPAU}}, func(Backend[format]) (*device, error) {
		opened++
		return &device{}, nil
	}, nil)

	assert.Nil(t, n)
	assert.Zero(t, opened)
}

func TestPrefer(t *testing.T) {
	out, err := Prefer(backends(), "")
	require.NoError(t, err)
	assert.Equal(t, backends(), out)

	out, err = Prefer(backends(), "NONE")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Prefer(backends(), "VAAPI")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "vaapi", out[0].Name)
	assert.Equal(t, "cuda", out[1].Name)

	_, err = Prefer(backends(), "qsv")
	assert.Error(t, err)
}

func TestOwnRegistersDeviceRelease(t *testing.T) {
	n := Negotiate(backends(), func(b Backend[format]) (*device, error) {
		return &device{name: b.Name}, nil
	}, nil)
	require.NotNil(t, n)

	var closers []func()
	var released []*device
	n.Own(func(f func()) { closers = append(closers, f) }, func(d *device) { released = append(released, d) })

	require.Len(t, closers, 1)
	assert.Empty(t, released)

	closers[0]()
	assert.Equal(t, []*device{n.Device}, released)
}

func TestOwnWithoutDevice(t *testing.T) {
	var n *Negotiation[format, *device]

	n.Own(func(func()) { t.Fatal("nothing to own") }, func(*device) {})
}
