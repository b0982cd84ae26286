package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

type socketController struct {
	classifier *radio.Classifier
	live       *liveSession
}

func newSocketController(classifier *radio.Classifier, live *liveSession) *socketController {
	return &socketController{classifier: classifier, live: live}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	stats := c.classifier.Stats()
	socket.Emit("modelInfo", stats)
}

func (c *socketController) handleRequestModelInfo(socket socketio.Conn) {
	c.emitModelInfo(socket)
}

func (c *socketController) handleClassify(ctx context.Context, socket socketio.Conn, msg string) {
	logger := utils.GetLogger()

	if msg == "" {
		logger.ErrorContext(ctx, "no data received in classify event")
		socket.Emit("analysisError", map[string]string{"message": "no request received"})
		return
	}

	var req models.ClassifyRequest
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse classify payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid classify payload"})
		return
	}
	if req.Frequency <= 0 {
		socket.Emit("analysisError", map[string]string{"message": "frequency must be positive"})
		return
	}
	target := models.Target{Name: req.Name, Frequency: req.Frequency}
	if target.Name == "" {
		target.Name = socket.ID()
	}

	logger.InfoContext(ctx, "classify requested",
		slog.String("socketID", socket.ID()),
		slog.String("target", target.Name),
		slog.Float64("frequency", target.Frequency))

	result, err := c.live.classify(ctx, target)
	if err != nil {
		_, message := classifyErrorMessage(err)
		err := xerrors.New(err)
		log.Printf("[handleClassify] Classifier error for socket %s: %v\n", socket.ID(), err)
		logger.ErrorContext(ctx, "failed to classify", slog.String("socketID", socket.ID()), slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": message})
		return
	}

	attrs := []any{
		slog.String("socketID", socket.ID()),
		slog.String("label", result.Prediction.Label),
		slog.String("family", result.Prediction.Family),
		slog.Duration("latency", result.Latency),
	}
	if result.Prediction.Confidence != nil {
		attrs = append(attrs, slog.Float64("confidence", *result.Prediction.Confidence))
	}
	logger.InfoContext(ctx, "classification complete", attrs...)

	socket.Emit("classification", result)
}
