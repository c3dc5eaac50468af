package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/backend/activebackend"
	"github.com/certen/ev-prover/internal/da"
	"github.com/certen/ev-prover/internal/metrics"
	blockexec "github.com/certen/ev-prover/internal/pipeline/blockexec"
	"github.com/certen/ev-prover/internal/pipeline/message"
	rangeagg "github.com/certen/ev-prover/internal/pipeline/rangeagg"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/publisher"
	"github.com/certen/ev-prover/internal/registry"
	"github.com/certen/ev-prover/internal/rollup"
	"github.com/certen/ev-prover/internal/server/grpcapi"
	"github.com/certen/ev-prover/internal/server/httpapi"
	"github.com/certen/ev-prover/internal/witness"
	"github.com/certen/ev-prover/pkg/config"
	"github.com/certen/ev-prover/pkg/database"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const rpcTimeout = 10 * time.Second

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 Starting ev-prover service")

	showHelp := flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration invalid: %v", err)
	}

	trusted, err := config.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("❌ Failed to load genesis trusted checkpoint: %v", err)
	}
	log.Printf("📋 Trusted checkpoint: rollup height=%d da height=%d", trusted.RollupHeight, trusted.DAHeight)

	signingKey, err := loadSigningKey(cfg.SignerKeyHex)
	if err != nil {
		log.Fatalf("❌ Failed to load publisher signing key: %v", err)
	}

	active := activebackend.New()
	witnessVariant := activebackend.WitnessVariant()
	log.Printf("🔧 Active backend: %s (witness format: %s)", active.Name(), witnessVariant)

	pool := backend.NewPool(active, backend.DefaultRetryPolicy(), log.New(log.Writer(), "[BackendPool] ", log.LstdFlags))

	daClient, err := da.NewClient(cfg.DARPC, rpcTimeout, log.New(log.Writer(), "[DA] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("❌ Failed to connect to DA RPC %s: %v", cfg.DARPC, err)
	}
	rollupClient, err := rollup.NewClient(cfg.EVMRPC, rpcTimeout, log.New(log.Writer(), "[Rollup] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("❌ Failed to connect to rollup RPC %s: %v", cfg.EVMRPC, err)
	}

	// ==========================================================================
	// Optional job-history database. Degraded mode on missing/unreachable
	// DATABASE_URL: audit history is lost across restarts but proving
	// continues, since job_history is a diagnostic trail, not the dedup
	// source of truth (that's the in-memory registry).
	// ==========================================================================
	var jobHistory *database.JobHistoryRepository
	if cfg.DatabaseURL == "" {
		log.Printf("⚠️ DATABASE_URL not set - running without persistent job history (DEGRADED mode)")
	} else {
		dbClient, err := database.NewClient(database.Params{
			URL:         cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
			MaxIdleTime: time.Duration(cfg.DatabaseMaxIdleTime) * time.Second,
			MaxLifetime: time.Duration(cfg.DatabaseMaxLifetime) * time.Second,
		}, database.WithLogger(log.New(log.Writer(), "[Database] ", log.LstdFlags)))
		if err != nil {
			log.Printf("⚠️ Database connection failed - running without persistent job history (DEGRADED mode): %v", err)
		} else {
			migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := dbClient.MigrateUp(migrateCtx); err != nil {
				log.Printf("⚠️ Job history migration failed - running without persistent job history (DEGRADED mode): %v", err)
				dbClient.Close()
			} else {
				jobHistory = database.NewJobHistoryRepository(dbClient)
				log.Printf("✅ Job history database connected and migrated")
			}
			migrateCancel()
			defer func() {
				if jobHistory == nil {
					return
				}
				if err := dbClient.Close(); err != nil {
					log.Printf("database close error: %v", err)
				}
			}()
		}
	}

	witnessCfg := witness.DefaultConfig()
	witnessCfg.Namespace = proverdata.Namespace(cfg.Namespace)
	witnessCfg.SequencerPublicKey = proverdata.Ed25519PublicKey(cfg.SequencerPublicKey)
	witnessCfg.WitnessVariant = witnessVariant
	assembler := witness.NewAssembler(daClient, rollupClient, witnessCfg, log.New(log.Writer(), "[Witness] ", log.LstdFlags))

	metricsReg := metrics.New()

	reg := registry.New(10*time.Minute, registry.WithMetrics(metricsReg))

	blockCfg := blockexec.DefaultConfig()
	blockCfg.MaxConcurrentProofs = cfg.MaxConcurrentProofs
	blockPipeline := blockexec.New(assembler, pool, reg, blockCfg, log.New(log.Writer(), "[BlockExec] ", log.LstdFlags), blockexec.WithMetrics(metricsReg))

	rangeCfg := rangeagg.DefaultConfig()
	rangeCfg.WindowSize = cfg.RangeWindowSize
	rangeCfg.WindowTimeout = cfg.RangeWindowTimeout
	rangePipeline := rangeagg.New(pool, reg, trusted, rangeCfg, log.New(log.Writer(), "[RangeAgg] ", log.LstdFlags), rangeagg.WithMetrics(metricsReg))

	msgCfg := message.DefaultConfig()
	msgCfg.MailboxAddress = ethcommon.HexToAddress(cfg.MailboxAddressHex)
	msgCfg.DispatchTopic = ethcommon.HexToHash(cfg.DispatchTopicHex)
	msgCfg.MerkleTreeContract = ethcommon.HexToAddress(cfg.MerkleTreeContractHex)
	messagePipeline := message.New(rollupClient, pool, reg, msgCfg, log.New(log.Writer(), "[MessageInclusion] ", log.LstdFlags), message.WithMetrics(metricsReg))

	pubCfg := publisher.DefaultConfig()
	pub := publisher.New(da.NewPublisherChain(daClient), signingKey, pubCfg, log.New(log.Writer(), "[Publisher] ", log.LstdFlags), publisher.WithMetrics(metricsReg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Block-exec input channel: the DA height watcher feeds ascending
	// heights starting just after the trusted checkpoint's DA height.
	heights := make(chan proverdata.Height)
	go watchDAHeight(ctx, daClient, trusted.DAHeight, heights, log.New(log.Writer(), "[HeightWatcher] ", log.LstdFlags))

	blockOut := blockPipeline.Run(ctx, heights, trusted)
	rangeOut := rangePipeline.Run(ctx, blockOut)

	// Range-aggregation notifications feed both the message-inclusion
	// pipeline's pending-request index and the on-chain publisher.
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		for notice := range rangeOut {
			messagePipeline.Notify(ctx, notice.Checkpoint)

			msg := publisher.Message{
				Kind:              publisher.KindUpdateZKExecutionISM,
				Height:            notice.Checkpoint.RollupHeight,
				ProofBytes:        notice.ProofBytes,
				PublicValuesBytes: mustSerialize(notice.Output),
			}
			if err := pub.Publish(ctx, msg); err != nil {
				log.Printf("❌ failed to publish range-aggregation proof for height %d: %v", notice.Checkpoint.RollupHeight, err)
			}
		}
	}()

	// Job-history mirroring: every terminal job is recorded (best effort)
	// alongside the in-memory registry that already governs dedup.
	if jobHistory != nil {
		completions, unsubscribe := reg.Subscribe()
		defer unsubscribe()
		go mirrorJobHistory(ctx, completions, reg, jobHistory, log.New(log.Writer(), "[JobHistory] ", log.LstdFlags))
	}

	go sampleMetrics(ctx, metricsReg, blockPipeline, rangePipeline, reg)

	handler := grpcapi.NewHandler(reg, blockPipeline, rangePipeline, messagePipeline, jobHistory, log.New(log.Writer(), "[gRPC] ", log.LstdFlags))
	grpcLogger := log.New(log.Writer(), "[gRPC] ", log.LstdFlags)
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcapi.LoggingUnaryInterceptor(grpcLogger)),
		grpc.StreamInterceptor(grpcapi.LoggingStreamInterceptor(grpcLogger)),
	)
	grpcapi.RegisterProverServiceServer(grpcServer, handler)

	grpcListener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		log.Fatalf("❌ Failed to bind gRPC listen address %s: %v", cfg.GRPCListenAddr, err)
	}
	go func() {
		log.Printf("🌐 gRPC server listening on %s", cfg.GRPCListenAddr)
		if err := grpcServer.Serve(grpcListener); err != nil && err != grpc.ErrServerStopped {
			log.Fatalf("❌ gRPC server failed: %v", err)
		}
	}()

	healthHandler := httpapi.New(handler, log.New(log.Writer(), "[HealthAPI] ", log.LstdFlags))
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/health", healthHandler.HandleHealth)
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsListenAddr, Handler: metricsMux}
	go func() {
		log.Printf("🌐 Health/metrics server listening on %s", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Health/metrics server failed: %v", err)
		}
	}()

	log.Printf("✅ ev-prover ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("🛑 Shutting down ev-prover...")
	cancel()

	// Wait for range-aggregation to stop, then for block-exec's in-flight
	// proofs to end and its output channel to close.
	<-notifyDone
	for range blockOut {
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("health/metrics server shutdown error: %v", err)
	}
	grpcServer.GracefulStop()

	log.Printf("✅ ev-prover stopped")
}

// loadSigningKey decodes the publisher's Ed25519 private key from hex.
// Validate() has already checked it parses as hex; the size check here
// guards against a wrong-length key slipping past that looser check.
func loadSigningKey(hexKey string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signer key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// watchDAHeight polls the DA layer's latest height and feeds every height
// from start+1 onward into out, in order, one at a time. Grounded on
// pkg/consensus/health_monitor.go's poll-and-compare loop shape.
func watchDAHeight(ctx context.Context, client *da.Client, start proverdata.Height, out chan<- proverdata.Height, logger *log.Logger) {
	defer close(out)
	next := start + 1
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latest, err := client.LatestHeight(ctx)
			if err != nil {
				logger.Printf("failed to poll DA latest height: %v", err)
				continue
			}
			for uint64(next) <= latest {
				select {
				case out <- next:
					next++
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// mirrorJobHistory records every terminal job into the optional database,
// best-effort: a recording failure is logged, never fatal, since the
// in-memory registry remains the source of truth for dedup.
func mirrorJobHistory(ctx context.Context, completions <-chan registry.CompletionNotice, reg *registry.Registry, repo *database.JobHistoryRepository, logger *log.Logger) {
	for notice := range completions {
		jobKey := notice.Key.String()
		if err := repo.RecordClaimed(ctx, jobKey, string(notice.Key.Program)); err != nil {
			logger.Printf("failed to record job claim for %s: %v", jobKey, err)
		}

		errDetail := ""
		succeeded := notice.Err == nil
		var proofBytes []byte
		if succeeded {
			res, err := reg.Await(ctx, registry.HandleForKey(notice.Key))
			if err != nil {
				logger.Printf("failed to fetch result for completed job %s: %v", jobKey, err)
			} else {
				proofBytes = res.Proof.ProofBytes
			}
		} else {
			errDetail = notice.Err.Error()
		}

		if err := repo.RecordCompleted(ctx, jobKey, succeeded, proofBytes, errDetail); err != nil {
			logger.Printf("failed to record job history for %s: %v", jobKey, err)
		}
	}
}

// sampleMetrics periodically reads the pipelines' and registry's exported
// accessor methods into the Prometheus gauges, avoiding any dependency
// threaded through their already-tested constructors.
func sampleMetrics(ctx context.Context, reg *metrics.Registry, block *blockexec.Pipeline, rangeAgg *rangeagg.Pipeline, jobs *registry.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.QueueDepth.WithLabelValues("block-exec").Set(float64(block.InFlight()))
			reg.QueueDepth.WithLabelValues("range-aggregation").Set(float64(rangeAgg.PendingCount()))
			reg.QueueDepth.WithLabelValues("registry").Set(float64(jobs.Len()))
		}
	}
}

func mustSerialize(v interface{}) []byte {
	b, err := proverdata.CanonicalSerialize(v)
	if err != nil {
		panic(fmt.Sprintf("serialize public outputs: %v", err))
	}
	return b
}

func printHelp() {
	fmt.Println("ev-prover - zk proving orchestrator for the Celestia-EVM bridge")
	fmt.Println()
	fmt.Println("Usage: ev-prover [flags]")
	fmt.Println()
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Configuration is read from environment variables; see pkg/config/config.go for the full list.")
}
