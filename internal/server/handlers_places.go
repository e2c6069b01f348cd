package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/plantrip/internal/places"
)

type autosuggestQuery struct {
	Name   string  `form:"name" binding:"required,min=3,max=200"`
	Lat    float64 `form:"lat" binding:"gte=-90,lte=90"`
	Lon    float64 `form:"lon" binding:"gte=-180,lte=180"`
	Radius int     `form:"radius"`
	Kinds  string  `form:"kinds"`
	Rate   *int    `form:"rate"`
	Limit  int     `form:"limit"`
}

type radiusQuery struct {
	Lat    float64 `form:"lat" binding:"gte=-90,lte=90"`
	Lon    float64 `form:"lon" binding:"gte=-180,lte=180"`
	Radius int     `form:"radius"`
	Kinds  string  `form:"kinds"`
	Rate   *int    `form:"rate"`
	Limit  int     `form:"limit"`
}

const defaultRate = 1

func rateOrDefault(rate *int) int {
	if rate == nil {
		return defaultRate
	}
	return *rate
}

func (h *httpHandler) handleAutosuggest(c *gin.Context) {
	var query autosuggestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	suggestions, err := h.places.Autosuggest(c.Request.Context(), places.AutosuggestQuery{
		Name:   query.Name,
		Lat:    query.Lat,
		Lon:    query.Lon,
		Radius: query.Radius,
		Kinds:  query.Kinds,
		Rate:   rateOrDefault(query.Rate),
		Limit:  query.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

func (h *httpHandler) handleRadius(c *gin.Context) {
	var query radiusQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	suggestions, err := h.places.Radius(c.Request.Context(), places.RadiusQuery{
		Lat:    query.Lat,
		Lon:    query.Lon,
		Radius: query.Radius,
		Kinds:  query.Kinds,
		Rate:   rateOrDefault(query.Rate),
		Limit:  query.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

func (h *httpHandler) handleGeoname(c *gin.Context) {
	geoname, err := h.places.Geoname(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, geoname)
}

func (h *httpHandler) handlePlaceDetail(c *gin.Context) {
	place, err := h.places.Detail(c.Request.Context(), c.Param("xid"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, place)
}
