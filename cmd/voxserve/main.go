package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"voxstream/internal/config"
	"voxstream/internal/logging"
	"voxstream/internal/protocol"
	"voxstream/internal/transport/ws"
	"voxstream/internal/world"
	"voxstream/internal/worldgen"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file")
	caves := flag.Bool("caves", true, "carve caves into the heightmap")
	churn := flag.Duration("churn", 0, "broadcast a random edit at this interval; 0 disables")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := serve(cfg, *caves, *churn, log); err != nil {
		log.Error("voxserve stopped", zap.Error(err))
		os.Exit(1)
	}
}

func serve(cfg *config.Config, caves bool, churn time.Duration, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := protocol.NewCodec()
	if err != nil {
		return err
	}
	defer codec.Close()

	var field worldgen.Field = worldgen.NewHeightmap(cfg.Worldgen.Seed, caves)
	if cfg.Worldgen.Flat {
		field = worldgen.Flat{Level: float64(cfg.Worldgen.SeaLevel)}
	}
	bounds := world.Bounds{DiscreteSize: cfg.World.DiscreteSize}
	src := worldgen.NewSource(field, cfg.World.CellSize, bounds, float64(cfg.Worldgen.SeaLevel), codec)
	srv := ws.NewServer(src, log)

	mux := http.NewServeMux()
	mux.Handle("/stream", srv)
	httpSrv := &http.Server{
		Addr:              cfg.Network.Listen,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Network.HandshakeTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Network.Listen),
			zap.Int64("seed", cfg.Worldgen.Seed),
			zap.Bool("flat", cfg.Worldgen.Flat),
			zap.Int("discrete_size", bounds.DiscreteSize))
		errc <- httpSrv.ListenAndServe()
	}()

	if churn > 0 {
		go runChurn(ctx, src, srv, bounds, churn, log)
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// runChurn edits random cells near the middle of the world so connected
// clients see a steady stream of updates.
func runChurn(ctx context.Context, src *worldgen.Source, srv *ws.Server, bounds world.Bounds, every time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	mid := bounds.DiscreteSize / 2
	span := max(1, min(8, bounds.DiscreteSize))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		key := world.Key(mid-span/2+rand.IntN(span), mid-span/2+rand.IntN(span), mid-span/2+rand.IntN(span))

		var (
			msg any
			err error
		)
		if rand.IntN(2) == 0 {
			n := world.BlockDim(world.TierFull)
			msg, err = src.SetBlock(key, rand.IntN(n), rand.IntN(n), rand.IntN(n), uint16(1+rand.IntN(worldgen.Sand)), 0)
		} else {
			n := world.TerrainDim(world.TierFull)
			msg, err = src.SetVoxel(key, rand.IntN(n), rand.IntN(n), rand.IntN(n), rand.Float32()*2-1, int32(worldgen.Stone))
		}
		if err != nil {
			log.Debug("churn edit skipped", zap.Stringer("cell", key), zap.Error(err))
			continue
		}
		sent := srv.Broadcast(msg)
		log.Debug("churn edit", zap.Stringer("cell", key), zap.Int("clients", sent))
	}
}
