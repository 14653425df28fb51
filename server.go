package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/models"
	"bitbucket.org/mmdatafocus/bakery_backend/models/reports"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"bitbucket.org/mmdatafocus/bakery_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// SIGTERM handling for graceful drain on managed platforms.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB/Redis are ready, app
	// endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/items", createItemHandler)
		api.GET("/items", listItemsHandler)
		api.GET("/items/:id", getItemHandler)
		api.GET("/items/:id/lots", listLotsHandler)
		api.POST("/acquisitions", recordAcquisitionHandler)
		api.POST("/consume", consumeHandler)
		api.POST("/consume/preview", previewHandler)
		api.POST("/lots/:id/adjust", adjustLotHandler)
		api.POST("/bulk/:itemId/adjust", adjustBulkHandler)
		api.POST("/costs/estimate", estimateCostHandler)
		api.POST("/recipes", createRecipeHandler)
		api.GET("/recipes", listRecipesHandler)
		api.GET("/recipes/:id", getRecipeHandler)
		api.GET("/recipes/:id/cost", recipeCostHandler)
		api.POST("/production-runs", productionRunHandler)
		api.GET("/reports/valuation", valuationHandler)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received; draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Fatal(err.Error())
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// statusForError maps the engines' error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrItemNotFound), errors.Is(err, models.ErrLotNotFound),
		errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case models.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInsufficientStock):
		return http.StatusConflict
	}
	var convErr *models.UnitConversionError
	if errors.As(err, &convErr) {
		return http.StatusBadRequest
	}
	var pricingErr *models.NoPricingHistoryError
	if errors.As(err, &pricingErr) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func createItemHandler(c *gin.Context) {
	var input models.NewItem
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := models.CreateItem(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func listItemsHandler(c *gin.Context) {
	items, err := models.ListItems(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func getItemHandler(c *gin.Context) {
	itemId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	item, err := models.GetItem(c.Request.Context(), itemId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func listLotsHandler(c *gin.Context) {
	itemId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	var lots []models.Lot
	db := config.GetDB()
	if err := db.WithContext(c.Request.Context()).
		Where("item_id = ?", itemId).
		Order("acquisition_date ASC, id ASC").
		Find(&lots).Error; err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lots)
}

func recordAcquisitionHandler(c *gin.Context) {
	var input models.NewAcquisition
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := models.RecordAcquisition(c.Request.Context(), models.NewStandardUnitConverter(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func consumeHandler(c *gin.Context) {
	var req models.ConsumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Mode = models.ConsumptionModeCommit
	ctx := c.Request.Context()

	// Commits against the same item's lot set must not interleave
	// across processes.
	release, err := utils.ItemLock(ctx, req.ItemId, "server", "consumeHandler")
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	defer release()

	result, err := models.DefaultConsumptionEngine().Consume(ctx, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func previewHandler(c *gin.Context) {
	var req models.ConsumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Mode = models.ConsumptionModePreview
	result, err := models.DefaultConsumptionEngine().Consume(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func adjustLotHandler(c *gin.Context) {
	lotId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lot id"})
		return
	}
	var input models.LotAdjustmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.LotId = lotId
	record, err := models.DefaultAdjustmentEngine().AdjustLot(c.Request.Context(), input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func adjustBulkHandler(c *gin.Context) {
	itemId, err := strconv.Atoi(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	var input models.BulkAdjustmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := models.AdjustBulkStock(c.Request.Context(), itemId, input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func estimateCostHandler(c *gin.Context) {
	var requirements []models.CostRequirement
	if err := c.ShouldBindJSON(&requirements); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total, err := models.DefaultBlendedCostCalculator().EstimateCost(c.Request.Context(), requirements)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_cost": total})
}

func createRecipeHandler(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := models.CreateRecipe(c.Request.Context(), &recipe)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func listRecipesHandler(c *gin.Context) {
	recipes, err := models.ListRecipes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipes)
}

func getRecipeHandler(c *gin.Context) {
	recipeId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipe id"})
		return
	}
	recipe, err := models.GetRecipe(c.Request.Context(), recipeId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

func recipeCostHandler(c *gin.Context) {
	recipeId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipe id"})
		return
	}
	batches := 1
	if v := c.Query("batches"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			batches = n
		}
	}
	total, err := workflow.EstimateRecipeCost(c.Request.Context(), recipeId, batches)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipe_id": recipeId, "batches": batches, "total_cost": total})
}

func productionRunHandler(c *gin.Context) {
	var input struct {
		RecipeId   int `json:"recipe_id" binding:"required"`
		BatchCount int `json:"batch_count" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := workflow.RecordProduction(c.Request.Context(), input.RecipeId, input.BatchCount)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func valuationHandler(c *gin.Context) {
	rows, err := reports.InventoryValuation(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	// ?min_value=25.50 keeps only items worth at least that much.
	if v := c.Query("min_value"); v != "" {
		minValue, err := utils.ConvertToDecimal(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_value: " + err.Error()})
			return
		}
		filtered := rows[:0]
		for _, row := range rows {
			if row.AssetValue.GreaterThanOrEqual(minValue) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	c.JSON(http.StatusOK, rows)
}
