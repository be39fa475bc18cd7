package integrationtest

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/vbehar/ffckmembers/internal/importer"
	"github.com/vbehar/ffckmembers/internal/model"
	"github.com/vbehar/ffckmembers/internal/service"
	"github.com/vbehar/ffckmembers/internal/store"
)

// setupRouter wires the whole service against the real database configured
// through the environment variables. Tests are skipped when no database is
// configured.
func setupRouter(t *testing.T) *gin.Engine {
	if os.Getenv("DBHOST") == "" {
		t.Skip("DBHOST not set, skipping integration test")
	}
	sqlDB := service.CreateDatabase()
	members := store.New(sqlDB, nil, nil)
	worker := importer.NewWorker(importer.New(members, nil), nil, nil, 4)
	worker.Start()
	service.Setup(members, worker)
	return service.SetupHttpRouter()
}

// randomCode generates a license code that is unlikely to collide with the
// ones of other test runs against the same database.
func randomCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}

// TestMemberHappyPath tests a POST, GET, PUT, and DELETE with valid data.
func TestMemberHappyPath(t *testing.T) {
	router := setupRouter(t)
	code := randomCode()

	// test the endpoint for creating a member
	postRecorder := httptest.NewRecorder()
	postRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(fmt.Sprintf(`
		{
			"code": "%s",
			"firstname": "Jean",
			"lastname": "Dupont",
			"birthdate": "02/03/1969",
			"lastlicense": "2012"
		}
	`, code)))
	router.ServeHTTP(postRecorder, postRequest)
	assert.Equal(t, http.StatusCreated, postRecorder.Code)
	var postBody map[string]interface{}
	json.Unmarshal(postRecorder.Body.Bytes(), &postBody)
	assert.Equal(t, code, postBody["code"])
	assert.Equal(t, "Jean", postBody["firstname"])
	assert.Equal(t, "Dupont", postBody["lastname"])

	// test the endpoint for finding a member, including the derived values
	getRecorder := httptest.NewRecorder()
	getRequest, _ := http.NewRequest("GET", "/members/"+code, nil)
	router.ServeHTTP(getRecorder, getRequest)
	assert.Equal(t, http.StatusOK, getRecorder.Code)
	var getBody map[string]interface{}
	json.Unmarshal(getRecorder.Body.Bytes(), &getBody)
	assert.Equal(t, code, getBody["code"])
	assert.Equal(t, "Jean", getBody["firstname"])
	assert.Equal(t, "02/03/1969", getBody["birthdate"])
	assert.Equal(t, "too old", getBody["category"])
	assert.NotNil(t, getBody["age"])

	// test the endpoint for replacing a member
	putRecorder := httptest.NewRecorder()
	putRequest, _ := http.NewRequest("PUT", "/members/"+code, strings.NewReader(`
		{
			"firstname": "Marie",
			"lastname": "Martin",
			"lastlicense": "2013"
		}
	`))
	router.ServeHTTP(putRecorder, putRequest)
	assert.Equal(t, http.StatusOK, putRecorder.Code)
	var putBody map[string]interface{}
	json.Unmarshal(putRecorder.Body.Bytes(), &putBody)
	assert.Equal(t, code, putBody["code"])
	assert.Equal(t, "Marie", putBody["firstname"])
	assert.Equal(t, "2013", putBody["lastlicense"])

	// test if a subsequent lookup of the member returns the replaced values
	getAgainRecorder := httptest.NewRecorder()
	getAgainRequest, _ := http.NewRequest("GET", "/members/"+code, nil)
	router.ServeHTTP(getAgainRecorder, getAgainRequest)
	assert.Equal(t, http.StatusOK, getAgainRecorder.Code)
	var getAgainBody map[string]interface{}
	json.Unmarshal(getAgainRecorder.Body.Bytes(), &getAgainBody)
	assert.Equal(t, "Marie", getAgainBody["firstname"])
	assert.Equal(t, "Martin", getAgainBody["lastname"])
	assert.Nil(t, getAgainBody["birthdate"]) // a replacement is never partial

	// test the endpoint for deleting a member
	deleteMember(t, router, code)

	// test if a final lookup of the member will correctly not find it
	getFinalRecorder := httptest.NewRecorder()
	getFinalRequest, _ := http.NewRequest("GET", "/members/"+code, nil)
	router.ServeHTTP(getFinalRecorder, getFinalRequest)
	assert.Equal(t, http.StatusNotFound, getFinalRecorder.Code)
}

// TestCreateMemberTwice tests that the same license code cannot be stored a
// second time through the creation endpoint.
func TestCreateMemberTwice(t *testing.T) {
	router := setupRouter(t)
	code := randomCode()

	body := fmt.Sprintf(`{"code": "%s", "firstname": "Jean", "lastname": "Dupont"}`, code)
	postRecorder := httptest.NewRecorder()
	postRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(body))
	router.ServeHTTP(postRecorder, postRequest)
	assert.Equal(t, http.StatusCreated, postRecorder.Code)

	againRecorder := httptest.NewRecorder()
	againRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(body))
	router.ServeHTTP(againRecorder, againRequest)
	assert.Equal(t, http.StatusConflict, againRecorder.Code)

	// clean up after the test
	deleteMember(t, router, code)
}

// TestPutCreatesMember tests that a PUT for an unknown license code creates
// the member.
func TestPutCreatesMember(t *testing.T) {
	router := setupRouter(t)
	code := randomCode()

	putRecorder := httptest.NewRecorder()
	putRequest, _ := http.NewRequest("PUT", "/members/"+code, strings.NewReader(`
		{
			"firstname": "Jean",
			"lastname": "Dupont"
		}
	`))
	router.ServeHTTP(putRecorder, putRequest)
	assert.Equal(t, http.StatusCreated, putRecorder.Code)
	var putBody map[string]interface{}
	json.Unmarshal(putRecorder.Body.Bytes(), &putBody)
	assert.Equal(t, code, putBody["code"])

	// clean up after the test
	deleteMember(t, router, code)
}

// TestFindMembersFiltered retrieves all members whose last name starts with
// certain letters and verifies that a previously created member with a
// matching last name is among them, and another previously created member
// with a non-matching last name is not.
func TestFindMembersFiltered(t *testing.T) {
	router := setupRouter(t)
	matchingCode := randomCode()
	nonMatchingCode := randomCode()

	// names that no CSV source would carry, so that we can narrow the search
	fakeLastName := fmt.Sprintf("Fixture%s", matchingCode)

	matchingPostRecorder := httptest.NewRecorder()
	matchingPostRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(fmt.Sprintf(`
		{
			"code": "%s",
			"firstname": "Jean",
			"lastname": "%s"
		}
	`, matchingCode, fakeLastName)))
	router.ServeHTTP(matchingPostRecorder, matchingPostRequest)
	assert.Equal(t, http.StatusCreated, matchingPostRecorder.Code)

	nonMatchingPostRecorder := httptest.NewRecorder()
	nonMatchingPostRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(fmt.Sprintf(`
		{
			"code": "%s",
			"firstname": "Marie",
			"lastname": "Martin"
		}
	`, nonMatchingCode)))
	router.ServeHTTP(nonMatchingPostRecorder, nonMatchingPostRequest)
	assert.Equal(t, http.StatusCreated, nonMatchingPostRecorder.Code)

	getRecorder := httptest.NewRecorder()
	getRequest, _ := http.NewRequest("GET", "/members?lastname=fixture", nil)
	router.ServeHTTP(getRecorder, getRequest)
	assert.Equal(t, http.StatusOK, getRecorder.Code)
	var results []model.Member
	json.Unmarshal(getRecorder.Body.Bytes(), &results)
	var found bool
	for _, member := range results {
		if member.Code == matchingCode {
			assert.Equal(t, "Jean", member.FirstName)
			assert.Equal(t, fakeLastName, member.LastName)
			found = true
		} else if member.Code == nonMatchingCode {
			assert.Fail(t, "found member with non-matching name", member)
		}
	}
	assert.True(t, found, "could not find member with matching name")

	// clean up after the test
	deleteMember(t, router, matchingCode)
	deleteMember(t, router, nonMatchingCode)
}

// TestFindMembersOrdered tests the 'orderby' and the 'ascending' URL
// parameters.
func TestFindMembersOrdered(t *testing.T) {
	router := setupRouter(t)

	fakeLastName := fmt.Sprintf("Fixture%s", randomCode())
	firstNames := []string{"Anton", "Michael", "Zacharias"}
	codes := [3]string{}
	for i, firstName := range firstNames {
		codes[i] = randomCode()
		postRecorder := httptest.NewRecorder()
		postRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(fmt.Sprintf(`
			{
				"code": "%s",
				"firstname": "%s",
				"lastname": "%s"
			}
		`, codes[i], firstName, fakeLastName)))
		router.ServeHTTP(postRecorder, postRequest)
		assert.Equal(t, http.StatusCreated, postRecorder.Code)
	}

	// Verify that ascending ordering by first name works
	{
		getRecorder := httptest.NewRecorder()
		url := fmt.Sprintf("/members?lastname=%s&orderby=firstname&ascending=true", fakeLastName)
		getRequest, _ := http.NewRequest("GET", url, nil)
		router.ServeHTTP(getRecorder, getRequest)
		assert.Equal(t, http.StatusOK, getRecorder.Code)
		var results []model.Member
		json.Unmarshal(getRecorder.Body.Bytes(), &results)
		assert.Equal(t, 3, len(results))
		assert.Equal(t, "Anton", results[0].FirstName)
		assert.Equal(t, "Michael", results[1].FirstName)
		assert.Equal(t, "Zacharias", results[2].FirstName)
	}

	// Verify that descending ordering by first name works
	{
		getRecorder := httptest.NewRecorder()
		url := fmt.Sprintf("/members?lastname=%s&orderby=firstname&ascending=false", fakeLastName)
		getRequest, _ := http.NewRequest("GET", url, nil)
		router.ServeHTTP(getRecorder, getRequest)
		assert.Equal(t, http.StatusOK, getRecorder.Code)
		var results []model.Member
		json.Unmarshal(getRecorder.Body.Bytes(), &results)
		assert.Equal(t, 3, len(results))
		assert.Equal(t, "Zacharias", results[0].FirstName)
		assert.Equal(t, "Michael", results[1].FirstName)
		assert.Equal(t, "Anton", results[2].FirstName)
	}

	// clean up after the test
	for _, code := range codes {
		deleteMember(t, router, code)
	}
}

// TestImportRoundTrip submits a CSV source to the import endpoint, waits for
// the run to complete, and verifies that the imported member carries the
// normalized values.
func TestImportRoundTrip(t *testing.T) {
	router := setupRouter(t)
	code := randomCode()

	csv := "NOM;PRENOM;CODE ADHERENT;TEL;SEXE;DERNIERE LICENCE\n" +
		fmt.Sprintf("DUPONT;jean-pierre;%s;04.56.78.90.12;H;2012\n", code)
	postRecorder := httptest.NewRecorder()
	postRequest, _ := http.NewRequest("POST", "/imports", strings.NewReader(csv))
	router.ServeHTTP(postRecorder, postRequest)
	assert.Equal(t, http.StatusAccepted, postRecorder.Code)
	var postBody map[string]interface{}
	json.Unmarshal(postRecorder.Body.Bytes(), &postBody)
	id, ok := postBody["id"].(string)
	assert.True(t, ok)

	// the import happens in the background, poll until it is done
	assert.Eventually(t, func() bool {
		statusRecorder := httptest.NewRecorder()
		statusRequest, _ := http.NewRequest("GET", "/imports/"+id, nil)
		router.ServeHTTP(statusRecorder, statusRequest)
		if statusRecorder.Code != http.StatusOK {
			return false
		}
		var statusBody map[string]interface{}
		json.Unmarshal(statusRecorder.Body.Bytes(), &statusBody)
		return statusBody["state"] == "done"
	}, 10*time.Second, 100*time.Millisecond)

	getRecorder := httptest.NewRecorder()
	getRequest, _ := http.NewRequest("GET", "/members/"+code, nil)
	router.ServeHTTP(getRecorder, getRequest)
	assert.Equal(t, http.StatusOK, getRecorder.Code)
	var getBody map[string]interface{}
	json.Unmarshal(getRecorder.Body.Bytes(), &getBody)
	assert.Equal(t, "Jean-Pierre", getBody["firstname"])
	assert.Equal(t, "Dupont", getBody["lastname"])
	assert.Equal(t, "+33456789012", getBody["phonehome"])
	assert.Equal(t, "M", getBody["gender"])
	assert.Equal(t, "2012", getBody["lastlicense"])

	// clean up after the test
	deleteMember(t, router, code)
}

// TestStatsEndpoint verifies that the stats endpoint counts a newly created
// member.
func TestStatsEndpoint(t *testing.T) {
	router := setupRouter(t)
	code := randomCode()

	before := readMemberCount(t, router)

	postRecorder := httptest.NewRecorder()
	postRequest, _ := http.NewRequest("POST", "/members", strings.NewReader(fmt.Sprintf(`
		{"code": "%s", "firstname": "Jean", "lastname": "Dupont"}
	`, code)))
	router.ServeHTTP(postRecorder, postRequest)
	assert.Equal(t, http.StatusCreated, postRecorder.Code)

	after := readMemberCount(t, router)
	assert.Equal(t, before+1, after)

	// clean up after the test
	deleteMember(t, router, code)
}

// readMemberCount fetches the number of stored members from the stats
// endpoint.
func readMemberCount(t *testing.T, router *gin.Engine) float64 {
	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest("GET", "/stats", nil)
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]interface{}
	json.Unmarshal(recorder.Body.Bytes(), &body)
	count, _ := body["members"].(float64)
	return count
}

// deleteMember deletes the member with the specified license code. It can be
// used for cleaning up after the test.
func deleteMember(t *testing.T, router *gin.Engine, code string) {
	deleteRecorder := httptest.NewRecorder()
	deleteRequest, _ := http.NewRequest("DELETE", fmt.Sprintf("/members/%s", code), nil)
	router.ServeHTTP(deleteRecorder, deleteRequest)
	assert.Equal(t, http.StatusOK, deleteRecorder.Code)
}
