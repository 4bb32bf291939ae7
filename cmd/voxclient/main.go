package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxstream/internal/config"
	"voxstream/internal/engine"
	"voxstream/internal/logging"
	"voxstream/internal/persist"
	"voxstream/internal/profiling"
	"voxstream/internal/render"
	"voxstream/internal/scene"
	"voxstream/internal/transport/ws"
	"voxstream/internal/world"
)

func init() {
	// glfw and GL calls must stay on the main thread
	runtime.LockOSThread()
}

const (
	frameInterval = 16 * time.Millisecond
	slowFrame     = 50 * time.Millisecond
	statusEvery   = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file")
	window := flag.Bool("window", false, "open a window and draw the streamed world")
	save := flag.String("save", "", "world save file; overrides persist.path")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *save != "" {
		cfg.Persist.Path = *save
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *window, log); err != nil {
		log.Error("voxclient stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, windowed bool, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sc     scene.Scene = scene.NewMemory()
		win    *glfw.Window
		glView *render.GLScene
	)
	if windowed {
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("glfw init: %w", err)
		}
		defer glfw.Terminate()
		w, err := setupWindow()
		if err != nil {
			return err
		}
		win = w
		if glView, err = render.NewGLScene(); err != nil {
			return err
		}
		defer glView.Close()
		sc = glView
	}

	prof := profiling.New()
	e, err := engine.New(cfg, sc, log, prof)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	var store *persist.Store
	if cfg.Persist.Path != "" {
		if store, err = persist.Open(cfg.Persist.Path); err != nil {
			return err
		}
		defer store.Close()
		if err := restore(ctx, e, store, log); err != nil {
			log.Warn("world save not restored", zap.Error(err))
		}
	}

	client, err := ws.Dial(ctx, ws.ClientConfig{
		URL:               cfg.Network.URL,
		Name:              cfg.Network.ClientName,
		SendQueue:         cfg.Network.SendQueue,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
		Burst:             cfg.Network.Burst,
		HandshakeTimeout:  cfg.Network.HandshakeTimeout,
		ReadTimeout:       cfg.Network.ReadTimeout,
		WriteTimeout:      cfg.Network.WriteTimeout,
	}, e, log)
	if err != nil {
		return err
	}
	defer client.Close()
	e.Connect(client)
	log.Info("connected", zap.String("url", cfg.Network.URL))

	observer := spawnPoint(cfg)
	loop := &frameLoop{e: e, prof: prof, log: log, observer: observer, lastStatus: time.Now()}

	if windowed {
		loop.runWindow(ctx, win, glView, client)
	} else {
		loop.runHeadless(ctx, client)
	}

	if store != nil {
		if err := persistWorld(e, store); err != nil {
			log.Error("world save failed", zap.Error(err))
		}
	}
	if err := client.Err(); err != nil && !errors.Is(err, ws.ErrClosed) {
		return err
	}
	return nil
}

func setupWindow() (*glfw.Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(1280, 720, "voxclient", nil, nil)
	if err != nil {
		return nil, err
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}
	glfw.SwapInterval(1)
	return window, nil
}

// spawnPoint puts the observer above the middle of the world.
func spawnPoint(cfg *config.Config) mgl32.Vec3 {
	half := float32(cfg.World.DiscreteSize*cfg.World.CellSize) / 2
	return mgl32.Vec3{half, float32(cfg.Worldgen.SeaLevel + cfg.World.CellSize), half}
}

type frameLoop struct {
	e          *engine.Engine
	prof       *profiling.Profiler
	log        *zap.Logger
	observer   mgl32.Vec3
	frames     int
	lastStatus time.Time
}

func (l *frameLoop) step() {
	l.prof.ResetFrame()
	st := l.e.Frame(l.observer)
	l.frames++

	if ft := l.prof.FrameTime(); ft > slowFrame {
		l.log.Warn("slow frame", zap.Duration("took", ft), l.prof.Field(3))
	}
	if st.Installed+st.Evicted+st.Edits > 0 {
		l.log.Debug("frame",
			zap.Int("installed", st.Installed),
			zap.Int("evicted", st.Evicted),
			zap.Int("edits", st.Edits),
			zap.Int("attached", st.Attached))
	}
	if time.Since(l.lastStatus) >= statusEvery {
		l.logStatus()
	}
}

func (l *frameLoop) logStatus() {
	elapsed := time.Since(l.lastStatus)
	for _, ks := range l.e.Status() {
		l.log.Info("stream status",
			zap.Stringer("kind", ks.Kind),
			zap.Int("cached", ks.Cached),
			zap.Int("outstanding", ks.Outstanding),
			zap.Int("drawable", ks.Cells.Drawable),
			zap.Int("needs_regen", ks.Cells.NeedsRegen),
			zap.Int("sent", ks.Requests.Sent),
			zap.Int("received", ks.Requests.Received),
			zap.Int("timed_out", ks.Requests.TimedOut))
	}
	l.log.Info("frame rate",
		zap.Float64("fps", float64(l.frames)/elapsed.Seconds()),
		zap.Int("pending_meshes", l.e.PendingMeshes()))
	l.frames = 0
	l.lastStatus = time.Now()
}

func (l *frameLoop) runHeadless(ctx context.Context, client *ws.Client) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			l.log.Warn("connection lost", zap.Error(client.Err()))
			return
		case <-ticker.C:
			l.step()
		}
	}
}

// runWindow draws until the window closes. WASD and Space/Shift move the
// observer; the camera orbits it.
func (l *frameLoop) runWindow(ctx context.Context, win *glfw.Window, gs *render.GLScene, client *ws.Client) {
	w, h := win.GetFramebufferSize()
	cam := render.NewCamera(w, h)
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		gl.Viewport(0, 0, int32(w), int32(h))
		if h > 0 {
			cam.AspectRatio = float32(w) / float32(h)
		}
	})
	gl.ClearColor(0.55, 0.7, 0.9, 1)

	var (
		yaw  float32
		view mgl32.Mat4
	)
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyP && action == glfw.Press {
			l.logPick(view)
		}
	})
	last := time.Now()
	for !win.ShouldClose() {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-client.Done():
			l.log.Warn("connection lost", zap.Error(client.Err()))
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now
		yaw += 0.1 * dt
		l.observer = l.observer.Add(moveInput(win).Mul(64 * dt))

		l.step()

		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		func() {
			defer l.prof.Track("render.Draw")()
			view = cam.Orbit(l.observer, 96, yaw, 0.5)
			gs.Draw(view, cam.Projection())
		}()
		win.SwapBuffers()
		glfw.PollEvents()
	}
}

// logPick reports the block at the centre of the screen.
func (l *frameLoop) logPick(view mgl32.Mat4) {
	inv := view.Inv()
	eye := inv.Col(3).Vec3()
	dir := inv.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3()
	hit := l.e.Raycast(eye, dir, 256)
	if !hit.Hit {
		l.log.Info("pick: nothing cached under cursor")
		return
	}
	l.log.Info("pick",
		zap.Stringer("cell", hit.Cell),
		zap.Ints("block", hit.Block[:]),
		zap.Float32("distance", hit.Distance))
}

func moveInput(win *glfw.Window) mgl32.Vec3 {
	var d mgl32.Vec3
	pressed := func(k glfw.Key) bool { return win.GetKey(k) == glfw.Press }
	if pressed(glfw.KeyW) {
		d[2]--
	}
	if pressed(glfw.KeyS) {
		d[2]++
	}
	if pressed(glfw.KeyA) {
		d[0]--
	}
	if pressed(glfw.KeyD) {
		d[0]++
	}
	if pressed(glfw.KeySpace) {
		d[1]++
	}
	if pressed(glfw.KeyLeftShift) {
		d[1]--
	}
	return d
}

func restore(ctx context.Context, e *engine.Engine, store *persist.Store, log *zap.Logger) error {
	var errs []error
	for _, kind := range world.Kinds {
		msgs, err := store.LoadStream(ctx, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.Import(msgs); err != nil {
			errs = append(errs, err)
		}
		log.Info("restored", zap.Stringer("kind", kind), zap.Int("records", len(msgs)))
	}
	return errors.Join(errs...)
}

func persistWorld(e *engine.Engine, store *persist.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var errs []error
	for _, kind := range world.Kinds {
		if err := store.SaveStream(ctx, kind, e.Export(kind)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
