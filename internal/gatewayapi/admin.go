package gatewayapi

import (
	"net/http"

	"github.com/araddon/dateparse"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/auth"
	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/pkg/common"
)

// createClient provisions a new internal API key. Admin only.
func createClient(c echo.Context) error {
	var payload struct {
		Name       string `json:"name"`
		DailyLimit *int64 `json:"daily_limit"`
		Admin      bool   `json:"admin"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, string(errs.KindValidation), "unable to parse request", nil)
	}
	if payload.Name == "" {
		return fail(c, http.StatusBadRequest, string(errs.KindValidation), "name is required", nil)
	}
	if payload.DailyLimit != nil && *payload.DailyLimit < 0 {
		return fail(c, http.StatusBadRequest, string(errs.KindValidation), "daily_limit must be >= 0", nil)
	}

	kind := domain.SourceInternal
	if payload.Admin {
		kind = domain.SourceAdmin
	}
	account, err := auth.CreateAccount(c.Request().Context(), accounts, payload.Name, kind, payload.DailyLimit)
	if err != nil {
		return failErr(c, errs.Internal(err))
	}
	// The key is shown exactly once, at creation time.
	return ok(c, map[string]interface{}{
		"api_key":     account.AccountKey,
		"name":        account.Name,
		"source_kind": account.SourceKind,
		"daily_limit": account.DailyLimit,
	})
}

func listClients(c echo.Context) error {
	all, err := accounts.List(c.Request().Context())
	if err != nil {
		return failErr(c, errs.Internal(err))
	}
	items := make([]map[string]interface{}, 0, len(all))
	for _, a := range all {
		used := a.DailyUsage
		if a.UsageResetDate != common.Today() {
			used = 0
		}
		items = append(items, map[string]interface{}{
			"name":        a.Name,
			"source_kind": a.SourceKind,
			"daily_limit": a.DailyLimit,
			"daily_usage": used,
			"created_at":  a.CreatedAt,
		})
	}
	return ok(c, map[string]interface{}{"clients": items})
}

// reportDay resolves the ?date= query parameter, defaulting to today.
// dateparse accepts most reasonable formats.
func reportDay(c echo.Context) (string, *errs.Error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return common.Today(), nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return "", errs.Validation("unparseable date: " + raw)
	}
	return common.DateString(t), nil
}

func usageReport(c echo.Context) error {
	day, derr := reportDay(c)
	if derr != nil {
		return failErr(c, derr)
	}
	rows, err := ledger.UsageByDay(c.Request().Context(), day)
	if err != nil {
		return failErr(c, errs.Internal(err))
	}
	var total int64
	items := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		total += r.Count
		items = append(items, map[string]interface{}{
			"session": r.SessionName,
			"count":   r.Count,
		})
	}
	return ok(c, map[string]interface{}{
		"date":     day,
		"total":    total,
		"sessions": items,
	})
}

type usageCSVRow struct {
	Date    string `csv:"date"`
	Session string `csv:"session"`
	Count   int64  `csv:"count"`
}

// usageExport streams the day's usage as CSV.
func usageExport(c echo.Context) error {
	day, derr := reportDay(c)
	if derr != nil {
		return failErr(c, derr)
	}
	rows, err := ledger.UsageByDay(c.Request().Context(), day)
	if err != nil {
		return failErr(c, errs.Internal(err))
	}
	out := make([]usageCSVRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, usageCSVRow{Date: r.Date, Session: r.SessionName, Count: r.Count})
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="usage-`+day+`.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return gocsv.Marshal(out, c.Response())
}

func metricsSnapshot(c echo.Context) error {
	if collector == nil {
		return fail(c, http.StatusServiceUnavailable, string(errs.KindInternal), "metrics collector not initialized", nil)
	}
	snap, err := collector.Snapshot()
	if err != nil {
		return failErr(c, errs.Internal(err))
	}
	return ok(c, snap)
}
