package sandbox

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Paging limits of list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Meta    *meta      `json:"meta,omitempty"`
}

type meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func (s *Server) fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Error: &errorBody{Code: code, Message: message}})
}

type importRequest struct {
	TableName string          `json:"tableName" binding:"required"`
	Mode      string          `json:"mode"`
	BatchID   string          `json:"batchId"`
	Data      json.RawMessage `json:"data" binding:"required"`
}

type importResult struct {
	Table     string `json:"table"`
	Imported  int    `json:"imported"`
	BatchID   string `json:"batchId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

func (s *Server) importRows(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	spec, ok := tables[req.TableName]
	if !ok {
		s.fail(c, http.StatusBadRequest, "TABLE_NOT_ALLOWED", fmt.Sprintf("table %q is not importable", req.TableName))
		return
	}
	switch req.Mode {
	case "", "append":
	case "upsert":
		if len(spec.conflict) == 0 {
			s.fail(c, http.StatusBadRequest, "INVALID_MODE", fmt.Sprintf("table %q has no unique key for upsert", req.TableName))
			return
		}
	default:
		s.fail(c, http.StatusBadRequest, "INVALID_MODE", fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}

	if err := s.injectFault(req.TableName); err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	rows := spec.rows()
	dec := json.NewDecoder(bytes.NewReader(req.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rows); err != nil {
		s.fail(c, http.StatusBadRequest, "INVALID_ROWS", err.Error())
		return
	}
	n := reflect.ValueOf(rows).Elem().Len()
	if n == 0 {
		s.fail(c, http.StatusBadRequest, "INVALID_ROWS", "no rows")
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		key = req.BatchID
	}
	result := importResult{Table: req.TableName, BatchID: key}

	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if key != "" {
			var seen int64
			if err := tx.Model(&ImportBatch{}).Where("batch_id = ?", key).Count(&seen).Error; err != nil {
				return err
			}
			if seen > 0 {
				result.Duplicate = true
				return nil
			}
		}

		q := tx
		if req.Mode == "upsert" {
			cols := make([]clause.Column, len(spec.conflict))
			for i, name := range spec.conflict {
				cols[i] = clause.Column{Name: name}
			}
			q = q.Clauses(clause.OnConflict{Columns: cols, UpdateAll: true})
		}
		if err := q.Create(rows).Error; err != nil {
			return err
		}
		result.Imported = n

		if key != "" {
			return tx.Create(&ImportBatch{BatchID: key, Target: req.TableName, Rows: n}).Error
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("import rejected", zap.String("table", req.TableName), zap.Error(err))
		s.fail(c, http.StatusBadRequest, "IMPORT_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: result})
}

// throttle answers 429 when an import arrives sooner than the limiter
// allows.
func (s *Server) throttle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		r := s.limiter.Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			s.fail(c, http.StatusTooManyRequests, "RATE_LIMITED", fmt.Sprintf("imports limited; retry in %s", delay.Round(time.Millisecond)))
			return
		}
		c.Next()
	}
}

func (s *Server) injectFault(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[table]++
	if s.fault == nil {
		return nil
	}
	return s.fault(table, s.calls[table])
}

// stats answers with a bare {table: rows} object.
func (s *Server) stats(c *gin.Context) {
	names := []string{TableWarehouses}
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(map[string]int64, len(names))
	db := s.db.WithContext(c.Request.Context())
	for _, name := range names {
		var n int64
		if err := db.Table(name).Count(&n).Error; err != nil {
			s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		out[name] = n
	}
	c.JSON(http.StatusOK, out)
}

func paging(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.Query("pageSize"))
	if err != nil || size < 1 {
		size = DefaultPageSize
	}
	return page, min(size, MaxPageSize)
}

// listOf serves a paginated collection of T ordered by id.
func listOf[T any](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, size := paging(c)
		db := s.db.WithContext(c.Request.Context())

		var total int64
		if err := db.Model(new(T)).Count(&total).Error; err != nil {
			s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		rows := make([]T, 0, size)
		if err := db.Order("id").Offset((page - 1) * size).Limit(size).Find(&rows).Error; err != nil {
			s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}

		pages := int(total) / size
		if int(total)%size > 0 {
			pages++
		}
		c.JSON(http.StatusOK, envelope{
			Success: true,
			Data:    rows,
			Meta:    &meta{Total: total, Page: page, PageSize: size, TotalPages: pages},
		})
	}
}

// warehouses answers with a bare array, as some destinations do for small
// reference tables.
func (s *Server) warehouses(c *gin.Context) {
	var rows []Warehouse
	if err := s.db.WithContext(c.Request.Context()).Order("id").Find(&rows).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, rows)
}

// TrendPoint is one day of the sales trend report.
type TrendPoint struct {
	Date        string `json:"date"`
	SalesAmount string `json:"sales_amount"`
	OrderCount  int    `json:"order_count"`
}

const dateLayout = "2006-01-02"

var errBadRange = errors.New("start_date and end_date must be YYYY-MM-DD with start <= end")

// salesTrend sums completed orders' final amount per day in [start, end].
func (s *Server) salesTrend(c *gin.Context) {
	start, errStart := time.Parse(dateLayout, c.Query("start_date"))
	end, errEnd := time.Parse(dateLayout, c.Query("end_date"))
	if errStart != nil || errEnd != nil || end.Before(start) {
		s.fail(c, http.StatusBadRequest, "INVALID_RANGE", errBadRange.Error())
		return
	}

	var orders []SalesOrder
	err := s.db.WithContext(c.Request.Context()).
		Select("order_date", "final_amount").
		Where("status = ? AND order_date >= ? AND order_date <= ?",
			"completed", start.Format(dateLayout)+" 00:00:00", end.Format(dateLayout)+" 23:59:59").
		Find(&orders).Error
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	type day struct {
		amount decimal.Decimal
		count  int
	}
	byDay := make(map[string]*day)
	for _, o := range orders {
		if len(o.OrderDate) < len(dateLayout) {
			continue
		}
		key := o.OrderDate[:len(dateLayout)]
		d, ok := byDay[key]
		if !ok {
			d = &day{}
			byDay[key] = d
		}
		d.amount = d.amount.Add(o.FinalAmount)
		d.count++
	}

	points := make([]TrendPoint, 0, len(byDay))
	for key, d := range byDay {
		points = append(points, TrendPoint{Date: key, SalesAmount: d.amount.StringFixed(2), OrderCount: d.count})
	}
	slices.SortFunc(points, func(a, b TrendPoint) int { return cmp.Compare(a.Date, b.Date) })
	c.JSON(http.StatusOK, points)
}
