package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

const importSweepInterval = 30 * time.Minute

type importRow struct {
	OfferID int64  `json:"offer_id"`
	Price   string `json:"price"`
}

// RunImportSweeper периодически подбирает задачи импорта цен, оставшиеся в
// статусе пробного прогона, и выполняет их по-настоящему. Работает до отмены
// контекста.
func (s *Service) RunImportSweeper(ctx context.Context) error {
	ticker := time.NewTicker(importSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepImportJobs(ctx)
		}
	}
}

func (s *Service) sweepImportJobs(ctx context.Context) {
	jobs, err := s.repo.ListImportJobsByStatus(ctx, model.ImportJobDryRunFinished)
	if err != nil {
		s.logger.Error("list import jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if err := s.runImportJob(ctx, job); err != nil {
			s.logger.Error("import job failed", zap.Int64("job_id", job.ID), zap.Error(err))
		}
	}
}

func (s *Service) runImportJob(ctx context.Context, job model.ImportJob) error {
	if err := s.repo.UpdateImportJob(ctx, job.ID, model.ImportJobRunning, ""); err != nil {
		return err
	}

	var rows []importRow
	if err := json.Unmarshal(job.Payload, &rows); err != nil {
		msg := fmt.Sprintf("decode payload: %v", err)
		if uerr := s.repo.UpdateImportJob(ctx, job.ID, model.ImportJobFailed, msg); uerr != nil {
			return uerr
		}
		return fmt.Errorf("decode payload: %w", err)
	}

	var rowErrors []string
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("offer %d: bad price %q", row.OfferID, row.Price))
			continue
		}
		if err := s.SetOfferPrice(ctx, row.OfferID, price); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("offer %d: %v", row.OfferID, err))
		}
	}

	status := model.ImportJobFinished
	if len(rowErrors) > 0 {
		status = model.ImportJobFailed
	}

	if err := s.repo.UpdateImportJob(ctx, job.ID, status, strings.Join(rowErrors, "; ")); err != nil {
		return err
	}

	s.logger.Info("import job done",
		zap.Int64("job_id", job.ID),
		zap.Int("rows", len(rows)),
		zap.Int("errors", len(rowErrors)),
	)

	return nil
}
