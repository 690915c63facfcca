// Package present puts decoded media on screen and on the speakers.
package present

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"github.com/GoldenFealla/avplayer/internal/media"
)

// Window shows video frames in a fyne window. Render and ResizeSurface
// may be called from any goroutine.
type Window struct {
	win   fyne.Window
	image *canvas.Image
}

// NewWindow creates a window of size pixels. onResize receives the drawable
// area in pixels every time it changes.
func NewWindow(a fyne.App, title string, size media.Size, onResize func(media.Size)) *Window {
	w := &Window{
		win:   a.NewWindow(title),
		image: canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1))),
	}
	w.image.FillMode = canvas.ImageFillContain
	w.image.ScaleMode = canvas.ImageScaleFastest

	l := &surfaceLayout{
		scale:    func() float32 { return w.win.Canvas().Scale() },
		onResize: onResize,
	}
	w.win.SetContent(container.New(l, w.image))
	w.win.Resize(toFyne(size, 1))
	return w
}

func (w *Window) Render(f media.VideoFrame) {
	img := toImage(f)
	fyne.Do(func() {
		w.image.Image = img
		w.image.Refresh()
	})
}

func (w *Window) ResizeSurface(size media.Size) {
	fyne.Do(func() {
		w.win.Resize(toFyne(size, w.win.Canvas().Scale()))
	})
}

func (w *Window) SetOnClosed(fn func()) {
	w.win.SetOnClosed(fn)
}

// ShowAndRun blocks in the fyne event loop until the window is closed.
func (w *Window) ShowAndRun() {
	w.win.ShowAndRun()
}

func (w *Window) Close() {
	fyne.Do(w.win.Close)
}

func toImage(f media.VideoFrame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

func toFyne(size media.Size, scale float32) fyne.Size {
	if scale <= 0 {
		scale = 1
	}
	return fyne.NewSize(float32(size.Width)/scale, float32(size.Height)/scale)
}

// surfaceLayout stretches its objects over the whole container and reports
// the container size in pixels whenever it changes.
type surfaceLayout struct {
	scale    func() float32
	onResize func(media.Size)
	last     media.Size
}

func (l *surfaceLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	for _, o := range objects {
		o.Move(fyne.NewPos(0, 0))
		o.Resize(size)
	}

	scale := l.scale()
	if scale <= 0 {
		scale = 1
	}
	px := media.Size{
		Width:  int(size.Width * scale),
		Height: int(size.Height * scale),
	}
	if px == l.last || l.onResize == nil {
		return
	}
	l.last = px
	l.onResize(px)
}

func (l *surfaceLayout) MinSize([]fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(1, 1)
}
