package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// Resolver looks up coarse location for an IP. Lookups are best-effort:
// any failure yields a Location carrying only the IP, never an error that
// would block a login flow.
type Resolver struct {
	cfg    config.GeoConfig
	client *http.Client
}

func NewResolver(cfg config.GeoConfig) *Resolver {
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type ipinfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Country string `json:"country"`
	Loc     string `json:"loc"`
}

// Resolve returns the location snapshot for ip.
func (r *Resolver) Resolve(ctx context.Context, ip string) model.Location {
	loc := model.Location{IP: ip}

	if !r.cfg.Enabled || ip == "" || isPrivateIP(ip) {
		return loc
	}

	url := fmt.Sprintf("%s/%s/json", strings.TrimSuffix(r.cfg.BaseURL, "/"), ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return loc
	}
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		util.Debug("geolocation lookup failed", util.String("ip", ip), util.ErrorField(err))
		return loc
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		util.Debug("geolocation lookup non-200", util.String("ip", ip), util.Int("status", resp.StatusCode))
		return loc
	}

	var body ipinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return loc
	}

	loc.City = body.City
	loc.Country = body.Country
	if lat, lng, ok := parseLoc(body.Loc); ok {
		loc.Latitude = lat
		loc.Longitude = lng
	}
	return loc
}

func parseLoc(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func isPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified()
}
