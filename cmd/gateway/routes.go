package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rentflow-system/internal/app"
	"rentflow-system/internal/database"
	"rentflow-system/internal/gateway/handlers"
	"rentflow-system/internal/gateway/middleware"
)

func newRouter(rt *app.Runtime) (*gin.Engine, error) {
	scanLimit, err := middleware.RateLimit(rt.Config.RateLimit.Scan)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.CORS(rt.Config.Server.AllowedOrigin))
	r.Use(middleware.AccessLog())
	r.Use(gin.Recovery())
	r.Use(serviceHealthMiddleware(rt))

	svc := rt.Services
	customerHandler := handlers.NewCustomerHTTPHandler(svc.Customers)
	employeeHandler := handlers.NewEmployeeHTTPHandler(svc.Employees)
	equipmentHandler := handlers.NewEquipmentHTTPHandler(svc.Equipment)
	templateHandler := handlers.NewTemplateHTTPHandler(svc.Templates)
	invoiceHandler := handlers.NewInvoiceHTTPHandler(svc.Invoices)
	commissionsHandler := handlers.NewCommissionsHTTPHandler(svc.Commissions)

	var scannerHandler *handlers.ScannerHTTPHandler
	if rt.Engines != nil && len(rt.Engines.Available()) > 0 {
		scannerHandler = handlers.NewScannerHTTPHandler(svc.Scanner, rt.Config.AI.ScanTimeout)
	}

	api := r.Group("/api/v1")
	{
		api.GET("/public/invoices/pdf", invoiceHandler.PublicPDF)

		customers := api.Group("/customers")
		{
			customers.POST("", customerHandler.CreateCustomer)
			customers.GET("", customerHandler.ListCustomers)
			customers.GET("/:id", customerHandler.GetCustomer)
			customers.PUT("/:id", customerHandler.UpdateCustomer)
			customers.DELETE("/:id", customerHandler.DeleteCustomer)
		}

		employees := api.Group("/employees")
		{
			employees.POST("", employeeHandler.CreateEmployee)
			employees.GET("", employeeHandler.ListEmployees)
			employees.GET("/:id", employeeHandler.GetEmployee)
			employees.PUT("/:id", employeeHandler.UpdateEmployee)
			employees.DELETE("/:id", employeeHandler.DeleteEmployee)
			employees.GET("/:id/commissions/summary", commissionsHandler.GetEmployeeSummary)
			employees.POST("/:id/commissions/pay", commissionsHandler.PayEmployee)
			employees.GET("/:id/commissions/batches", commissionsHandler.ListBatches)
		}

		equipment := api.Group("/equipment")
		{
			equipment.POST("", equipmentHandler.CreateEquipment)
			equipment.GET("", equipmentHandler.ListEquipment)
			equipment.GET("/catalog", equipmentHandler.Catalog)
			equipment.GET("/:id", equipmentHandler.GetEquipment)
			equipment.PUT("/:id", equipmentHandler.UpdateEquipment)
			equipment.PUT("/:id/active", equipmentHandler.SetActive)
			equipment.DELETE("/:id", equipmentHandler.DeleteEquipment)
		}

		templates := api.Group("/templates")
		{
			templates.POST("", templateHandler.CreateTemplate)
			templates.GET("", templateHandler.ListTemplates)
			templates.GET("/:id", templateHandler.GetTemplate)
			templates.PUT("/:id", templateHandler.UpdateTemplate)
			templates.DELETE("/:id", templateHandler.DeleteTemplate)
			templates.POST("/:id/default", templateHandler.SetDefault)
		}

		invoices := api.Group("/invoices")
		{
			invoices.POST("", invoiceHandler.CreateInvoice)
			invoices.GET("", invoiceHandler.ListInvoices)
			invoices.POST("/preview", invoiceHandler.PreviewTotals)
			invoices.POST("/audit", invoiceHandler.AuditTotals)
			invoices.GET("/:id", invoiceHandler.GetInvoice)
			invoices.PUT("/:id", invoiceHandler.UpdateInvoice)
			invoices.DELETE("/:id", invoiceHandler.DeleteInvoice)
			invoices.POST("/:id/status", invoiceHandler.ToggleStatus)
			invoices.PUT("/:id/status", invoiceHandler.SetStatus)
			invoices.GET("/:id/pdf", invoiceHandler.DownloadPDF)
			invoices.POST("/:id/share", invoiceHandler.ShareLink)
			invoices.POST("/:id/assignments", commissionsHandler.AssignInvoiceEmployees)
		}

		api.POST("/services/:id/assignments", commissionsHandler.AssignServiceEmployees)

		commissions := api.Group("/commissions")
		{
			commissions.GET("/assignments", commissionsHandler.ListAssignments)
			commissions.DELETE("/assignments/:id", commissionsHandler.RemoveAssignment)
			commissions.GET("/export", commissionsHandler.ExportXLSX)
		}

		scan := api.Group("/scan")
		{
			if scannerHandler != nil {
				scan.POST("", scanLimit, scannerHandler.Scan)
				scan.POST("/invoices", scannerHandler.CreateInvoice)
			} else {
				scan.POST("", serviceUnavailableHandler("Scanner service"))
				scan.POST("/invoices", serviceUnavailableHandler("Scanner service"))
			}
		}
	}

	r.GET("/health", healthCheckHandler(rt))
	r.GET("/health/detailed", detailedHealthCheckHandler(rt))

	return r, nil
}

func serviceUnavailableHandler(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"message": serviceName + " is currently unavailable",
			"error":   "SERVICE_UNAVAILABLE",
		})
	}
}

func serviceHealthMiddleware(rt *app.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rt.Redis != nil {
			c.Header("X-Cache-Service", "available")
		} else {
			c.Header("X-Cache-Service", "unavailable")
		}
		if rt.Engines != nil && len(rt.Engines.Available()) > 0 {
			c.Header("X-Scanner-Service", "available")
		} else {
			c.Header("X-Scanner-Service", "unavailable")
		}
		c.Next()
	}
}

func healthCheckHandler(rt *app.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		httpStatus := http.StatusOK

		unavailableServices := []string{}
		if err := database.Ping(rt.DB); err != nil {
			unavailableServices = append(unavailableServices, "database")
		}
		if rt.Redis == nil {
			unavailableServices = append(unavailableServices, "redis")
		}
		if rt.Engines == nil || len(rt.Engines.Available()) == 0 {
			unavailableServices = append(unavailableServices, "scanner")
		}

		if len(unavailableServices) > 0 {
			status = "degraded"
			httpStatus = http.StatusPartialContent
		}

		c.JSON(httpStatus, gin.H{
			"status":               status,
			"message":              "Server is running",
			"unavailable_services": unavailableServices,
			"timestamp":            time.Now(),
		})
	}
}

func detailedHealthCheckHandler(rt *app.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		services := map[string]interface{}{
			"database": checkServiceHealth(database.Ping(rt.DB)),
			"redis":    checkRedisHealth(ctx, rt),
		}
		engines := map[string]interface{}{}
		if rt.Engines != nil {
			for _, name := range rt.Engines.Available() {
				engines[name] = checkServiceHealth(nil)
			}
			for name, reason := range rt.Engines.Unavailable() {
				engines[name] = map[string]interface{}{
					"status":  "unavailable",
					"message": reason,
				}
			}
		}
		services["scanner_engines"] = engines

		overallStatus := "healthy"
		for _, service := range services {
			if serviceMap, ok := service.(map[string]interface{}); ok {
				if st, ok := serviceMap["status"]; ok && st != "healthy" {
					overallStatus = "degraded"
				}
			}
		}
		if len(engines) == 0 || (rt.Engines != nil && len(rt.Engines.Available()) == 0) {
			overallStatus = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"overall_status": overallStatus,
			"services":       services,
			"timestamp":      time.Now(),
		})
	}
}

func checkRedisHealth(ctx context.Context, rt *app.Runtime) map[string]interface{} {
	if rt.Redis == nil {
		return map[string]interface{}{
			"status":  "unavailable",
			"message": "Redis client not initialized, running without cache",
		}
	}
	return checkServiceHealth(rt.Redis.Ping(ctx).Err())
}

func checkServiceHealth(err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{
			"status":  "unavailable",
			"message": err.Error(),
		}
	}
	return map[string]interface{}{
		"status":  "healthy",
		"message": "Service is responding",
	}
}
