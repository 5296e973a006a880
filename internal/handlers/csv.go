package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"luckydraw/internal/models"
	"luckydraw/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

const utf8BOM = "\xef\xbb\xbf"

// UploadRegistrantsCSV replaces the round's registrants with the rows of the
// uploaded file. Columns are code, name, contact; a header row is skipped.
func (h *HTTPHandler) UploadRegistrantsCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Sprintf("Error retrieving file: %v", err))
		return
	}
	defer file.Close()

	rows, err := readRegistrants(file)
	if err != nil {
		logger.Infof("Rejected registrant CSV for round %s: %v", c.Param("id"), err)
		badRequest(c, fmt.Sprintf("Error reading CSV: %v", err))
		return
	}
	h.replaceRegistrants(c, rows)
}

func readRegistrants(r io.Reader) ([]services.RegistrantInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []services.RegistrantInput
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 {
			record[0] = strings.TrimPrefix(record[0], utf8BOM)
			if isHeader(record[0]) {
				continue
			}
		}
		if len(record) > 3 {
			return nil, fmt.Errorf("line %d: expected at most 3 columns, got %d", line, len(record))
		}

		row := services.RegistrantInput{Code: record[0]}
		if len(record) > 1 {
			row.Name = record[1]
		}
		if len(record) > 2 {
			row.Phone = record[2]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isHeader(first string) bool {
	switch strings.ToLower(strings.TrimSpace(first)) {
	case "code", "mã số":
		return true
	}
	return false
}

// ExportWinnersCSV downloads the filtered winner records with masked contacts.
func (h *HTTPHandler) ExportWinnersCSV(c *gin.Context) {
	winners, err := h.service.AllWinners(c.Request.Context(), winnerFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}

	rows := make([][]string, 0, len(winners))
	for _, winner := range winners {
		rows = append(rows, []string{
			winner.RoundName,
			winner.PrizeName,
			winner.RegistrantCode,
			winner.RegistrantName,
			maskPhone(winner.RegistrantPhone),
			winner.DrawnAt.Format(time.RFC3339),
		})
	}
	writeCSV(c, datedFilename("winners"),
		[]string{"Lần quay", "Giải thưởng", "Mã số", "Tên người trúng", "Số điện thoại", "Thời gian quay"}, rows)
}

// ExportRegistrantsCSV downloads the round's registrants with masked contacts
// and whether each has won in the round.
func (h *HTTPHandler) ExportRegistrantsCSV(c *gin.Context) {
	ctx := c.Request.Context()
	roundID := c.Param("id")
	registrants, err := h.service.AllRegistrants(ctx, roundID)
	if err != nil {
		respondError(c, err)
		return
	}
	winners, err := h.service.AllWinners(ctx, models.WinnerFilter{RoundID: roundID})
	if err != nil {
		respondError(c, err)
		return
	}
	won := make(map[string]bool, len(winners))
	for _, w := range winners {
		won[w.RegistrantID] = true
	}

	rows := make([][]string, 0, len(registrants))
	for _, r := range registrants {
		status := "Chưa trúng thưởng"
		if won[r.ID] {
			status = "Đã trúng thưởng"
		}
		rows = append(rows, []string{r.Code, r.Name, maskPhone(r.Phone), status})
	}
	writeCSV(c, datedFilename("registrants"), []string{"Mã số", "Tên", "Số điện thoại", "Trạng thái"}, rows)
}

// DownloadRegistrantTemplate serves a sample upload file in the format
// UploadRegistrantsCSV reads.
func (h *HTTPHandler) DownloadRegistrantTemplate(c *gin.Context) {
	writeCSV(c, "registrants-template.csv", []string{"code", "name", "contact"}, [][]string{
		{"10000001", "Nguyễn Văn A", "0901234567"},
		{"10000002", "Trần Thị B", "0901234568"},
		{"10000003", "Lê Văn C", "0901234569"},
	})
}

func datedFilename(prefix string) string {
	return fmt.Sprintf("%s_%s.csv", prefix, time.Now().Format("2006-01-02"))
}

func writeCSV(c *gin.Context, filename string, header []string, rows [][]string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment;filename="+filename)

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.WriteString(utf8BOM)

	w := csv.NewWriter(c.Writer)
	if err := w.Write(header); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if err := w.WriteAll(rows); err != nil {
		logger.Infof("Error writing %s: %v", filename, err)
	}
}
