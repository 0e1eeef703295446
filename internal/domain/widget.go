package domain

import (
	"encoding/json"
	"time"
)

// Tipos de widget que el backend conoce hoy. El payload de cada uno es opaco para el cliente.
const (
	WidgetFarmMap               = "farm-map"
	WidgetWeatherToday          = "weather-today"
	WidgetSatelliteImagery      = "satellite-imagery"
	WidgetNDVIChart             = "ndvi-chart"
	WidgetGrowthTracker         = "growth-tracker"
	WidgetSoilMoistureMap       = "soil-moisture-map"
	WidgetCropRecommendation    = "crop-recommendation"
	WidgetProfitabilityForecast = "profitability-forecast"
	WidgetRotationPlan          = "rotation-plan"
	WidgetPriceChart            = "price-chart"
	WidgetExpenseTracker        = "expense-tracker"
	WidgetInventoryStatus       = "inventory-status"
	WidgetSellTiming            = "sell-timing"
)

const genericWidgetLabel = "📊 Widget"

var widgetLabels = map[string]string{
	WidgetFarmMap:               "🗺️ Farm Map",
	WidgetWeatherToday:          "🌤️ Weather",
	WidgetSatelliteImagery:      "🛰️ Satellite",
	WidgetNDVIChart:             "📈 NDVI",
	WidgetGrowthTracker:         "🌱 Growth",
	WidgetSoilMoistureMap:       "💧 Moisture",
	WidgetCropRecommendation:    "🌾 Crops",
	WidgetProfitabilityForecast: "💰 Profit",
	WidgetRotationPlan:          "🔄 Rotation",
	WidgetPriceChart:            "📊 Prices",
	WidgetExpenseTracker:        "💵 Expenses",
	WidgetInventoryStatus:       "📦 Inventory",
	WidgetSellTiming:            "⏰ Timing",
}

// Widget es un payload tipado para el panel lateral.
type Widget struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	Payload   json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Label devuelve la etiqueta del selector de widgets.
func (w Widget) Label() string {
	return WidgetLabel(w.Kind)
}

func WidgetLabel(kind string) string {
	if label, ok := widgetLabels[kind]; ok {
		return label
	}
	return genericWidgetLabel
}

// KnownWidgetKind indica si existe un renderer para el tipo.
func KnownWidgetKind(kind string) bool {
	_, ok := widgetLabels[kind]
	return ok
}

func (w Widget) clone() Widget {
	if w.Payload != nil {
		w.Payload = append(json.RawMessage(nil), w.Payload...)
	}
	return w
}
