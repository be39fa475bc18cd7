package service

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbehar/ffckmembers/internal/importer"
	"github.com/vbehar/ffckmembers/internal/model"
	"github.com/vbehar/ffckmembers/internal/store"
)

// members is the storage engine behind the REST API.
var members *store.Store

// imports is the background worker processing queued CSV imports.
var imports *importer.Worker

// allowedOrderby are the allowed values for the 'orderby' URL parameter,
// mapped to the column they sort by.
var allowedOrderby = map[string]string{
	"code":        model.ColumnCode,
	"firstname":   model.ColumnFirstName,
	"lastname":    model.ColumnLastName,
	"lastlicense": model.ColumnLastLicense,
}

// allowedAscending are the allowed values for the 'ascending' URL parameter.
var allowedAscending = []string{"true", "false"}

// CreateDatabase initializes and returns a database connection. The
// connection parameters are taken from the system's environment variables.
func CreateDatabase() *sql.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/members?parseTime=true",
		os.Getenv("DBUSER"), os.Getenv("DBPWD"), os.Getenv("DBHOST"))
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatal(err)
	}
	return sqlDB
}

// Setup wires the service to its storage engine and import worker.
func Setup(st *store.Store, worker *importer.Worker) {
	members = st
	imports = worker
}

// SetupHttpRouter initializes the REST API router and registers all
// endpoints. The two member resource shapes are the whole collection
// (/members) and a single member addressed by license code
// (/members/{code}); anything else is not found.
func SetupHttpRouter() *gin.Engine {
	var router *gin.Engine
	if strings.EqualFold(os.Getenv("GIN_LOGGING"), "off") {
		fmt.Println("Turning off HTTP request logging.")
		router = gin.New()
		router.Use(gin.Recovery())
	} else {
		router = gin.Default()
	}
	router.GET("/members", findMembers)
	router.POST("/members", createMember)
	router.DELETE("/members", deleteAllMembers)
	router.GET("/members/:code", findMemberByCode)
	router.PUT("/members/:code", replaceMemberByCode)
	router.DELETE("/members/:code", deleteMemberByCode)
	router.GET("/stats", showStats)
	router.POST("/imports", enqueueImport)
	router.GET("/imports/:id", findImportByID)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// memberDetails is the representation of a single member, enriched with the
// derived values the roster views display.
type memberDetails struct {
	model.Member
	Age      *int   `json:"age,omitempty"`
	Category string `json:"category"`
}

// detailsOf computes the derived values of a member as of now.
func detailsOf(member model.Member) memberDetails {
	now := time.Now()
	details := memberDetails{
		Member:   member,
		Category: member.CalculateCategory(now).String(),
	}
	if age, ok := member.Age(now); ok {
		details.Age = &age
	}
	return details
}

// findMembers responds with a list of members as JSON.
//
// The URL parameters 'firstname' and 'lastname' are interpreted as the
// beginning of the first name or last name of the member, matched without
// regard to case. The URL parameter 'lastlicense' only returns members whose
// last license is exactly this year.
//
// The URL parameter 'orderby' specifies the member property by which the
// results shall be sorted. Valid values are 'code', 'firstname', 'lastname',
// and 'lastlicense'. If this URL parameter is not specified, the members
// will be sorted by last name.
//
// If the URL parameter 'ascending' is set to 'false' then the sort order is
// reversed, starting with the 'highest' value.
//
// REST API calls:
//
//	> curl "http://localhost:8080/members"
//	> curl "http://localhost:8080/members?lastname=Dup"
//	> curl "http://localhost:8080/members?lastlicense=2012"
//	> curl "http://localhost:8080/members?orderby=code&ascending=false"
func findMembers(c *gin.Context) {
	filter, success := parseFilter(c)
	if !success {
		return
	}
	results, err := members.Query(filter)
	if err != nil {
		log.Panicln(err)
	}
	if results == nil {
		// an empty collection is still a collection
		results = []model.Member{}
	}
	c.IndentedJSON(http.StatusOK, results)
}

// parseFilter inspects the URL parameters and builds the storage filter for
// a collection query.
func parseFilter(c *gin.Context) (filter store.Filter, success bool) {
	filter.FirstName = c.Query("firstname")
	filter.LastName = c.Query("lastname")

	lastLicense := c.Query("lastlicense")
	if lastLicense != "" && !isDigits(lastLicense, 4) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid lastlicense parameter"})
		return store.Filter{}, false
	}
	filter.LastLicense = lastLicense

	orderby := c.Query("orderby")
	if orderby != "" {
		column, ok := allowedOrderby[orderby]
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid orderby parameter"})
			return store.Filter{}, false
		}
		filter.OrderBy = column
	}

	ascending := c.Query("ascending")
	if ascending != "" && !contains(allowedAscending, ascending) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid ascending parameter"})
		return store.Filter{}, false
	}
	filter.Descending = ascending == "false"
	return filter, true
}

// createMember inserts the member specified in the request's JSON into the
// database. It responds with the full member data including the newly
// assigned id.
//
// Example REST API call:
//
//	> curl http://localhost:8080/members --request "POST" --include --header "Content-Type: application/json" --data '{"code": "012345", "firstname": "Jean", "lastname": "Dupont", "lastlicense": "2012"}'
func createMember(c *gin.Context) {
	var newMember model.Member
	if err := c.BindJSON(&newMember); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	if !isDigits(newMember.Code, 6) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "code must consist of exactly 6 digits"})
		return
	}
	id, err := members.Insert(newMember)
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	case errors.Is(err, store.ErrDuplicateCode):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	case err != nil:
		log.Panicln(err)
	}
	newMember.Id = id
	c.IndentedJSON(http.StatusCreated, newMember)
}

// findMemberByCode locates the member whose license code matches the code
// parameter of the request URL, then returns that member as a response,
// together with the derived age and competition category.
//
// Example REST API call:
//
//	> curl http://localhost:8080/members/012345
func findMemberByCode(c *gin.Context) {
	code, valid := parseCode(c)
	if !valid {
		return
	}
	member, err := members.Get(code)
	if err != nil {
		log.Panicln(err)
	}
	if member == nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "member not found"})
		return
	}
	c.IndentedJSON(http.StatusOK, detailsOf(*member))
}

// replaceMemberByCode stores the full member record specified in the
// request's JSON under the license code of the request URL: an update if the
// code is already present, an insert otherwise. Partial updates are not
// supported, and the code of a stored member never changes.
//
// Example REST API call:
//
//	> curl http://localhost:8080/members/012345 --request "PUT" --include --header "Content-Type: application/json" --data '{"firstname": "Jean", "lastname": "Dupont", "lastlicense": "2013"}'
func replaceMemberByCode(c *gin.Context) {
	code, valid := parseCode(c)
	if !valid {
		return
	}

	var submitted model.Member
	if err := c.BindJSON(&submitted); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	if submitted.Code != "" && submitted.Code != code {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "code in body does not match the URL"})
		return
	}
	submitted.Code = code

	existing, err := members.Get(code)
	if err != nil {
		log.Panicln(err)
	}
	if existing == nil {
		id, errInsert := members.Insert(submitted)
		if errors.Is(errInsert, store.ErrInvalidRecord) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": errInsert.Error()})
			return
		}
		if errInsert != nil {
			log.Panicln(errInsert)
		}
		submitted.Id = id
		c.IndentedJSON(http.StatusCreated, submitted)
		return
	}

	if _, errUpdate := members.Update(code, submitted); errUpdate != nil {
		if errors.Is(errUpdate, store.ErrInvalidRecord) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": errUpdate.Error()})
			return
		}
		log.Panicln(errUpdate)
	}
	submitted.Id = existing.Id
	c.IndentedJSON(http.StatusOK, submitted)
}

// deleteMemberByCode deletes the member whose license code matches the code
// parameter of the request URL from the database.
//
// Example REST API call:
//
//	> curl http://localhost:8080/members/012345 --request "DELETE"
func deleteMemberByCode(c *gin.Context) {
	code, valid := parseCode(c)
	if !valid {
		return
	}
	count, err := members.Delete(code)
	if err != nil {
		log.Panicln(err)
	}
	if count == 1 {
		c.IndentedJSON(http.StatusOK, gin.H{"message": "member deleted"})
	} else {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "member not found"})
	}
}

// deleteAllMembers empties the whole members collection and responds with
// the number of deleted members.
//
// Example REST API call:
//
//	> curl http://localhost:8080/members --request "DELETE"
func deleteAllMembers(c *gin.Context) {
	count, err := members.DeleteAll()
	if err != nil {
		log.Panicln(err)
	}
	c.IndentedJSON(http.StatusOK, gin.H{"deleted": count})
}

// showStats responds with the number of stored members.
//
// Example REST API call:
//
//	> curl http://localhost:8080/stats
func showStats(c *gin.Context) {
	count, err := members.Count()
	if err != nil {
		log.Panicln(err)
	}
	c.IndentedJSON(http.StatusOK, gin.H{"members": count})
}

// enqueueImport submits the request body as a members CSV source for the
// background import worker, and responds with the identifier of the queued
// run. The import itself happens asynchronously: poll /imports/{id} or
// re-query the collection after completion.
//
// Example REST API call:
//
//	> curl http://localhost:8080/imports --request "POST" --include --data-binary @members.csv
func enqueueImport(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "cannot read request body"})
		return
	}
	if len(data) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "empty import source"})
		return
	}
	id, err := imports.Enqueue(data)
	if errors.Is(err, importer.ErrQueueFull) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "import queue is full, retry later"})
		return
	}
	if err != nil {
		log.Panicln(err)
	}
	c.IndentedJSON(http.StatusAccepted, gin.H{"id": id, "state": importer.RunPending})
}

// findImportByID responds with the status of a queued import run.
//
// Example REST API call:
//
//	> curl http://localhost:8080/imports/3a7b...
func findImportByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "invalid import run id"})
		return
	}
	status, ok := imports.Status(id)
	if !ok {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "import run not found"})
		return
	}
	c.IndentedJSON(http.StatusOK, status)
}

// parseCode validates the code parameter of the request URL: a member is
// only ever addressed by a 6-digit license code.
func parseCode(c *gin.Context) (code string, valid bool) {
	code = c.Param("code")
	if !isDigits(code, 6) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "invalid code parameter"})
		return "", false
	}
	return code, true
}

// isDigits returns true if the string consists of exactly n digits.
func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// contains returns true if a string is present in a slice.
func contains(slice []string, str string) bool {
	for _, v := range slice {
		if v == str {
			return true
		}
	}
	return false
}
