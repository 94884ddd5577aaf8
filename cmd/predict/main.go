// Command predict runs an object-detection pipeline over image files or a
// video file and reports (or renders) the detections.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/spf13/viper"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/models"
	"github.com/vision-ml/go-predict/pipelines"
	"github.com/vision-ml/go-predict/postprocess"
	"github.com/vision-ml/go-predict/processing"
	"github.com/vision-ml/go-predict/results"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

func main() {
	var (
		configPath string
		outputPath string
	)
	flag.StringVar(&configPath, "config", "predict.yaml", "path to the configuration file")
	flag.StringVar(&outputPath, "output", "", "output path for video predictions")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: predict [-config predict.yaml] [-output out.mp4] <image|video> ...")
		os.Exit(2)
	}

	pipe, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Error("building pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	inputs := flag.Args()
	if len(inputs) == 1 && videoExtensions[strings.ToLower(filepath.Ext(inputs[0]))] {
		if err := pipe.PredictVideo(inputs[0], outputPath, cfg.BatchSize); err != nil {
			logger.Error("video prediction failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	sources := make([]images.Source, len(inputs))
	for i, path := range inputs {
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			sources[i] = images.URL(path)
		} else {
			sources[i] = images.File(path)
		}
	}

	res, err := pipe.Run(sources...)
	if err != nil {
		logger.Error("prediction failed", slog.Any("error", err))
		os.Exit(1)
	}
	report(res.(*results.DetectionResults), inputs)
}

func report(res *results.DetectionResults, inputs []string) {
	for i, r := range res.Results {
		fmt.Printf("%s: %d objects\n", inputs[i], r.Prediction.Len())
		for j, box := range r.Prediction.Boxes {
			name := labelName(r, r.Prediction.Labels[j])
			fmt.Printf("  %-16s %.2f  (%.0f, %.0f)-(%.0f, %.0f)\n",
				name, r.Prediction.Scores[j], box[0], box[1], box[2], box[3])
		}
	}
}

func labelName(r *results.DetectionResult, id int) string {
	if id >= 0 && id < len(r.ClassNames) {
		return r.ClassNames[id]
	}
	return fmt.Sprintf("class_%d", id)
}

type config struct {
	ModelPath     string
	InputName     string
	OutputName    string
	OutputRows    int
	Device        string
	InputSize     int
	Confidence    float64
	IoU           float64
	ClassesPath   string
	BatchSize     int
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("predict")
	v.AutomaticEnv()

	v.SetDefault("model.input", "images")
	v.SetDefault("model.output", "output0")
	v.SetDefault("model.rows", 8400)
	v.SetDefault("device", models.DeviceCPU)
	v.SetDefault("input_size", 640)
	v.SetDefault("confidence_threshold", 0.25)
	v.SetDefault("iou_threshold", 0.45)
	v.SetDefault("batch_size", 32)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if v.GetString("model.path") == "" {
		return nil, fmt.Errorf("model.path is required")
	}

	return &config{
		ModelPath:     v.GetString("model.path"),
		InputName:     v.GetString("model.input"),
		OutputName:    v.GetString("model.output"),
		OutputRows:    v.GetInt("model.rows"),
		Device:        v.GetString("device"),
		InputSize:     v.GetInt("input_size"),
		Confidence:    v.GetFloat64("confidence_threshold"),
		IoU:           v.GetFloat64("iou_threshold"),
		ClassesPath:   v.GetString("classes"),
		BatchSize:     v.GetInt("batch_size"),
		LogPath:       v.GetString("log.path"),
		LogMaxSizeMB:  v.GetInt("log.max_size_mb"),
		LogMaxBackups: v.GetInt("log.max_backups"),
	}, nil
}

func newLogger(cfg *config) *slog.Logger {
	if cfg.LogPath == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}, nil))
}

func buildPipeline(cfg *config, logger *slog.Logger) (*pipelines.DetectionPipeline, error) {
	classNames := models.YOLOClasses
	if cfg.ClassesPath != "" {
		loaded, err := loadClassNames(cfg.ClassesPath)
		if err != nil {
			return nil, err
		}
		classNames = loaded
	}

	model, err := models.NewONNX(models.ONNXConfig{
		Path:       cfg.ModelPath,
		Inputs:     []string{cfg.InputName},
		Outputs:    []string{cfg.OutputName},
		OutputDims: [][]int64{{int64(cfg.OutputRows), int64(5 + len(classNames))}},
		Device:     cfg.Device,
	})
	if err != nil {
		return nil, err
	}

	decoder := &postprocess.YOLODecoder{
		ConfidenceThreshold: float32(cfg.Confidence),
		NMS:                 postprocess.NMSConfig{IoUThreshold: float32(cfg.IoU), ClassAware: true},
		NumClasses:          len(classNames),
	}

	return pipelines.NewDetection(classNames, decoder, pipelines.Config{
		Model: model,
		Steps: []processing.Processing{
			&processing.DetectionLetterbox{TargetHeight: cfg.InputSize, TargetWidth: cfg.InputSize},
			&processing.Standardize{Scale: 255},
			processing.HWC2CHW{},
		},
		Device: cfg.Device,
		Logger: logger,
	})
}

func loadClassNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no class names in %s", path)
	}
	return names, nil
}
