package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/tripcast/internal/common"
	"github.com/i474232898/tripcast/internal/weather"
)

// DefaultOpenMeteoURL is the public Open-Meteo forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const (
	openMeteoDays        = 7
	openMeteoConcurrency = 4
)

// OpenMeteo implements weather.Forecaster over the Open-Meteo daily forecast.
// Every day becomes a daytime period carrying the maximum temperature and a
// night period carrying the minimum. It needs no API key.
type OpenMeteo struct {
	name    string
	baseURL string
	httpCfg common.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Forecaster = (*OpenMeteo)(nil)

func NewOpenMeteo(client *http.Client, baseURL string) *OpenMeteo {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteo{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: common.HTTPClientConfig{
			Client: client,
			Backoff: common.BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: common.NewBreaker("openmeteo"),
	}
}

func (p *OpenMeteo) Name() string {
	return p.name
}

type openMeteoPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Daily            struct {
		Time        []string   `json:"time"`
		WeatherCode []*int     `json:"weather_code"`
		TempMax     []*float64 `json:"temperature_2m_max"`
		TempMin     []*float64 `json:"temperature_2m_min"`
		PrecipMax   []*float64 `json:"precipitation_probability_max"`
		WindMax     []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

func (p *OpenMeteo) Forecast(ctx context.Context, lon, lat float64) ([]weather.ForecastPeriod, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max,wind_speed_10m_max")
		values.Set("timezone", "auto")
		values.Set("forecast_days", fmt.Sprint(openMeteoDays))
		values.Set("temperature_unit", "fahrenheit")
		values.Set("wind_speed_unit", "mph")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := common.DoRequestWithResilience(ctx, p.httpCfg, p.circuit, true, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	var payload openMeteoPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", p.name, err)
	}

	periods := dailyPeriods(payload)
	if len(periods) == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, weather.ErrNoForecasts)
	}
	return periods, nil
}

// ForecastBatch looks every location up separately. Locations that fail are
// returned with an empty forecast.
func (p *OpenMeteo) ForecastBatch(ctx context.Context, refs []weather.LocationRef) ([]weather.BatchResult, error) {
	out := make([]weather.BatchResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(openMeteoConcurrency)
	for i, ref := range refs {
		out[i].Ref = ref
		g.Go(func() error {
			lon, lat := ref.Coords()
			periods, err := p.Forecast(gctx, lon, lat)
			if err != nil {
				// only cancellation aborts the batch
				return gctx.Err()
			}
			out[i].Forecast = periods
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dailyPeriods(payload openMeteoPayload) []weather.ForecastPeriod {
	zone := time.FixedZone("", payload.UTCOffsetSeconds)
	d := payload.Daily

	out := make([]weather.ForecastPeriod, 0, 2*len(d.Time))
	for i, day := range d.Time {
		date, err := time.ParseInLocation(time.DateOnly, day, zone)
		if err != nil {
			continue
		}
		code := at(d.WeatherCode, i)
		pop := &weather.QuantityValue{Value: at(d.PrecipMax, i), UnitCode: "wmoUnit:percent"}
		wind := ""
		if w := at(d.WindMax, i); w != nil {
			wind = fmt.Sprintf("%.0f mph", *w)
		}

		dayStart := date.Add(6 * time.Hour)
		nightStart := date.Add(18 * time.Hour)
		out = append(out,
			weather.ForecastPeriod{
				Number:                     len(out) + 1,
				Name:                       date.Weekday().String(),
				StartTime:                  dayStart.Format(time.RFC3339),
				EndTime:                    nightStart.Format(time.RFC3339),
				IsDaytime:                  true,
				Temperature:                value(at(d.TempMax, i)),
				TemperatureUnit:            "F",
				WindSpeed:                  wind,
				ShortForecast:              openMeteoCondition(code, true),
				ProbabilityOfPrecipitation: pop,
			},
			weather.ForecastPeriod{
				Number:                     len(out) + 2,
				Name:                       date.Weekday().String() + " Night",
				StartTime:                  nightStart.Format(time.RFC3339),
				EndTime:                    date.Add(30 * time.Hour).Format(time.RFC3339),
				IsDaytime:                  false,
				Temperature:                value(at(d.TempMin, i)),
				TemperatureUnit:            "F",
				WindSpeed:                  wind,
				ShortForecast:              openMeteoCondition(code, false),
				ProbabilityOfPrecipitation: pop,
			},
		)
	}
	return out
}

// openMeteoCondition maps WMO weather codes to a short forecast (simplified).
func openMeteoCondition(code *int, daytime bool) string {
	if code == nil {
		return ""
	}
	switch c := *code; {
	case c == 0 && daytime:
		return "Sunny"
	case c == 0:
		return "Clear"
	case c <= 2:
		return "Partly Cloudy"
	case c == 3:
		return "Cloudy"
	case c == 45 || c == 48:
		return "Fog"
	case c >= 51 && c <= 57:
		return "Drizzle"
	case c >= 61 && c <= 67:
		return "Rain"
	case c >= 71 && c <= 77:
		return "Snow"
	case c >= 80 && c <= 82:
		return "Rain Showers"
	case c == 85 || c == 86:
		return "Snow Showers"
	case c >= 95:
		return "Thunderstorms"
	default:
		return "Unknown"
	}
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
