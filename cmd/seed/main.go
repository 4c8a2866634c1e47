// Command seed loads exam definitions from a YAML file into the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chipcloud/ielts-practice/internal/config"
	"github.com/chipcloud/ielts-practice/internal/db"
	"github.com/chipcloud/ielts-practice/internal/exam"
	"github.com/chipcloud/ielts-practice/internal/logger"
	syncx "github.com/chipcloud/ielts-practice/internal/sync"
)

func main() {
	file := flag.String("file", "seed/exams.yaml", "YAML file with exams")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, _ := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := seed(ctx, cfg, *file, log)
	if err != nil {
		log.Fatal("seed failed", zap.String("file", *file), zap.Error(err))
	}
	log.Info("seed complete", zap.Int("exams", n))
}

func loadConfig(path string) (config.Config, error) {
	v, err := config.New(path)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func seed(ctx context.Context, cfg config.Config, file string, log *zap.Logger) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	exams, err := exam.LoadExamsYAML(f)
	if err != nil {
		return 0, err
	}

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return 0, err
	}
	defer dbh.Close()

	svc := exam.NewService(exam.NewSQLStore(dbh, cfg.DBDriver),
		exam.WithEvents(syncx.NewEventRepo(dbh, cfg.SiteID)),
		exam.WithLogger(log),
	)
	for _, e := range exams {
		if _, err := svc.PutExam(ctx, e); err != nil {
			return 0, fmt.Errorf("exam %q: %w", e.Name, err)
		}
	}
	return len(exams), nil
}
