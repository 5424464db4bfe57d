// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreatedTotal считает успешно оформленные заказы.
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vapeshop_orders_created_total",
		Help: "Total number of orders created",
	})

	// OrdersFailedTotal считает неуспешные оформления по причинам.
	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vapeshop_orders_failed_total",
		Help: "Total number of failed order submissions",
	}, []string{"reason"})

	// CheckoutLatency измеряет длительность транзакции оформления заказа.
	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vapeshop_checkout_latency_seconds",
		Help:    "Latency of the order checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	// NotificationsFailedTotal считает неудачные отправки уведомлений.
	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vapeshop_notifications_failed_total",
		Help: "Total number of failed telegram notifications",
	})

	// CatalogCacheHitsTotal считает попадания в кэш каталога.
	CatalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vapeshop_catalog_cache_hits_total",
		Help: "Total number of catalog cache hits",
	})
)
