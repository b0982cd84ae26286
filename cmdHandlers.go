package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rtl-ml/capture"
	"rtl-ml/config"
	"rtl-ml/dataset"
	"rtl-ml/db"
	"rtl-ml/detections"
	"rtl-ml/models"
	"rtl-ml/publish"
	"rtl-ml/radio"
	"rtl-ml/session"
	"rtl-ml/utils"
)

// liveSettle replaces the default settle time for interactive classification.
const liveSettle = 100 * time.Millisecond

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// liveSession serialises access to the single tuner across socket and HTTP
// clients.
type liveSession struct {
	mu      sync.Mutex
	session *session.Session
}

func (l *liveSession) classify(ctx context.Context, target models.Target) (session.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timeout := l.session.Options.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return l.session.Classify(ctx, target)
}

// classifyErrorMessage maps pipeline errors to client-facing messages.
func classifyErrorMessage(err error) (int, string) {
	switch {
	case errors.Is(err, radio.ErrModelNotLoaded):
		return http.StatusServiceUnavailable, "no model loaded"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "capture timed out"
	case errors.Is(err, capture.ErrCapture):
		return http.StatusBadGateway, "capture failed"
	default:
		return http.StatusInternalServerError, "classifier error"
	}
}

func parseTarget(name, frequency string) (models.Target, error) {
	freq, err := strconv.ParseFloat(strings.TrimSpace(frequency), 64)
	if err != nil || freq <= 0 {
		return models.Target{}, fmt.Errorf("invalid frequency %q", frequency)
	}
	if name == "" {
		name = fmt.Sprintf("%.3f MHz", freq/1e6)
	}
	return models.Target{Name: name, Frequency: freq}, nil
}

func newModelInfoHandler(classifier *radio.Classifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, classifier.Stats())
	}
}

func newClassifyHandler(live *liveSession) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		target, err := parseTarget(r.URL.Query().Get("name"), r.URL.Query().Get("frequency"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := live.classify(ctx, target)
		if err != nil {
			status, message := classifyErrorMessage(err)
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to classify", slog.Float64("frequency", target.Frequency), slog.Any("error", err))
			writeJSONError(w, status, message)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func newDetectionsHandler(lister detections.Lister) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		detectionsList, err := lister.List(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load detections", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to load detections")
			return
		}

		writeJSON(w, http.StatusOK, detectionsList)
	}
}

// openSinks builds the configured sinks. The JSON file log is always on;
// the others start only when configured. A sink that cannot start is
// logged and left out.
func openSinks(ctx context.Context, cfg *config.Config) detections.Fanout {
	logger := utils.GetLogger()
	sinks := detections.Fanout{detections.NewFileStore(cfg.DetectionsDir)}

	if cfg.Database.Driver != "" {
		dsn, err := cfg.DatabaseDSN()
		if err == nil {
			var client *db.SQLClient
			client, err = db.NewSQLClient(cfg.Database.Driver, dsn)
			if err == nil {
				sinks = append(sinks, client)
			}
		}
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "SQL sink disabled", slog.String("driver", cfg.Database.Driver), slog.Any("error", err))
		}
	}

	if cfg.Mongo.URI != "" {
		client, err := db.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "MongoDB sink disabled", slog.Any("error", err))
		} else {
			sinks = append(sinks, client)
		}
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := publish.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "MQTT sink disabled", slog.String("broker", cfg.MQTT.Broker), slog.Any("error", err))
		} else {
			sinks = append(sinks, publisher)
		}
	}

	return sinks
}

// openSource connects to rtl_tcp, or replays a dataset directory when replay is set.
func openSource(ctx context.Context, cfg *config.Config, replay string, live bool) (capture.Source, error) {
	if replay != "" {
		store, err := dataset.NewFileStore(replay)
		if err != nil {
			return nil, err
		}
		return capture.LoadRecordSource(ctx, store)
	}
	rtlCfg := cfg.RTLTCP
	if live && rtlCfg.Settle < liveSettle {
		rtlCfg.Settle = liveSettle
	}
	return capture.DialRTLTCP(ctx, rtlCfg)
}

// loadClassifier returns an empty classifier when the model cannot be loaded
// so the server can still report its state.
func loadClassifier(ctx context.Context, path string) *radio.Classifier {
	classifier, err := radio.NewClassifierFromFile(path)
	if err != nil {
		err := xerrors.New(err)
		utils.GetLogger().ErrorContext(ctx, "failed to load model", slog.String("path", path), slog.Any("error", err))
		return &radio.Classifier{}
	}
	return classifier
}

func serve(ctx context.Context, cfg *config.Config, protocol, port, replay string) error {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	classifier := loadClassifier(ctx, cfg.ModelPath)

	source, err := openSource(ctx, cfg, replay, true)
	if err != nil {
		return err
	}
	defer source.Close()

	sinks := openSinks(ctx, cfg)
	defer sinks.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sess := session.New(source, classifier, cfg.Session)
	sess.Sink = sinks
	sess.Metrics = session.NewMetrics(registry)
	sess.Options.Corroborate = true
	live := &liveSession{session: sess}

	controller := newSocketController(classifier, live)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.handleRequestModelInfo(socket)
	})

	server.OnEvent("/", "classify", func(socket socketio.Conn, msg string) {
		// captures take hundreds of milliseconds, keep the socket loop free
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleClassify for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleClassify(ctx, socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/model", newModelInfoHandler(classifier))
	mux.HandleFunc("/api/classify", newClassifyHandler(live))
	mux.HandleFunc("/api/detections", newDetectionsHandler(sinks))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return serveHTTP(ctx, protocol == "https", listenAddr(cfg, port), mux)
}

// listenAddr prefers an explicit -p port over the configured server address.
func listenAddr(cfg *config.Config, port string) string {
	if port != "" {
		return ":" + port
	}
	if cfg.Server.Addr != "" {
		return cfg.Server.Addr
	}
	return ":5000"
}

func serveHTTP(ctx context.Context, serveHTTPS bool, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	var err error
	if serveHTTPS {
		certKey := utils.GetEnv("CERT_KEY")
		certFile := utils.GetEnv("CERT_FILE")
		if certKey == "" || certFile == "" {
			return errors.New("CERT_KEY and CERT_FILE are required for https")
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		log.Printf("Starting HTTPS server on %s\n", httpServer.Addr)
		err = httpServer.ListenAndServeTLS(certFile, certKey)
	} else {
		log.Printf("Starting HTTP server on %s\n", httpServer.Addr)
		err = httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type classifyOptions struct {
	replay string
	freq   float64
	name   string
	json   bool
}

func classify(ctx context.Context, cfg *config.Config, opts classifyOptions) error {
	classifier, err := radio.NewClassifierFromFile(cfg.ModelPath)
	if err != nil {
		return err
	}
	source, err := openSource(ctx, cfg, opts.replay, true)
	if err != nil {
		return err
	}
	defer source.Close()

	sinks := openSinks(ctx, cfg)
	defer sinks.Close()

	sess := session.New(source, classifier, cfg.Session)
	sess.Sink = sinks

	if opts.freq > 0 {
		result, err := sess.Classify(ctx, models.Target{Name: opts.name, Frequency: opts.freq})
		if err != nil {
			return err
		}
		return printResult(result, opts.json)
	}

	batch, err := sess.ClassifyAll(ctx, cfg.Targets)
	if opts.json {
		if encErr := json.NewEncoder(os.Stdout).Encode(batch); encErr != nil {
			return encErr
		}
	} else {
		session.PrintBatch(os.Stdout, batch)
	}
	return err
}

func printResult(result session.Result, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	conf := "n/a"
	if result.Prediction.Confidence != nil {
		conf = fmt.Sprintf("%.2f", *result.Prediction.Confidence)
	}
	fmt.Printf("%s @ %.3f MHz: %s (confidence %s, %s, %dms)\n",
		result.Target.Name, result.Target.Frequency/1e6, result.Prediction.Label,
		conf, result.Prediction.Family, result.Latency.Milliseconds())
	return nil
}

func captureDataset(ctx context.Context, cfg *config.Config, out string, samples int, labels string) error {
	logger := utils.GetLogger()
	if out == "" {
		out = cfg.DatasetDir
	}
	if samples > 0 {
		cfg.Session.SamplesPerClass = samples
	}

	plan := cfg.CapturePlan
	if labels != "" {
		wanted := map[string]bool{}
		for _, label := range strings.Split(labels, ",") {
			wanted[strings.TrimSpace(label)] = true
		}
		var filtered []models.Target
		for _, signal := range plan {
			if wanted[signal.Label()] {
				filtered = append(filtered, signal)
			}
		}
		plan = filtered
	}
	if len(plan) == 0 {
		return errors.New("capture plan is empty")
	}

	store, err := dataset.NewFileStore(out)
	if err != nil {
		return err
	}
	source, err := openSource(ctx, cfg, "", false)
	if err != nil {
		return err
	}
	defer source.Close()

	sinks := openSinks(ctx, cfg)
	defer sinks.Close()

	sess := session.New(source, nil, cfg.Session)
	sess.Sink = sinks

	started := time.Now()
	summary, err := sess.CaptureDataset(ctx, plan, store)
	for _, signal := range plan {
		label := signal.Label()
		record, validated := summary.Report[label]
		logger.InfoContext(ctx, "class captured",
			slog.String("label", label),
			slog.Int("saved", summary.Saved[label]),
			slog.Bool("validated", validated),
			slog.Bool("passed", validated && record.Passed()))
	}
	logger.InfoContext(ctx, "dataset capture finished",
		slog.String("dir", store.Dir()),
		slog.Int("failures", len(summary.Failures)),
		slog.Duration("elapsed", time.Since(started)))
	return err
}
