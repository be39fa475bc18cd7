package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const serverPort = 8080

// Usage example on the command line:
// > go run main.go
//
// The client measures the average request duration in microseconds for each
// of the HTTP methods, against a locally running service. Members are
// addressed by synthetic 6-digit license codes, so the database should be
// empty before a run.
func main() {
	fmt.Println()
	fmt.Println("  Elements      POST       PUT       GET    DELETE ")
	fmt.Println("---------------------------------------------------")
	sizes := []int{1000, 5000, 10000, 50000}
	for _, loops := range sizes {
		fmt.Printf("%10d", loops)
		codes := createRandomSliceWithCodes(loops)
		{
			// POST requests
			var duration int64
			for _, code := range codes {
				duration += sendCollectionRequest(memberJSON(code))
			}
			fmt.Printf("%10d", duration/int64(loops*1000))
		}
		{
			// PUT requests
			f := func(code string) int64 {
				return sendItemRequest(code, http.MethodPut, memberJSON(code))
			}
			callInLoop(codes, f)
		}
		{
			// GET requests
			f := func(code string) int64 {
				return sendItemRequest(code, http.MethodGet, nil)
			}
			callInLoop(codes, f)
		}
		{
			// DELETE requests
			f := func(code string) int64 {
				return sendItemRequest(code, http.MethodDelete, nil)
			}
			callInLoop(codes, f)
		}
		fmt.Println()
	}
}

func memberJSON(code string) io.Reader {
	body := fmt.Sprintf(`{
		"code": "%s",
		"firstname": "Marcus",
		"lastname": "Antonius",
		"birthdate": "09/11/1927",
		"lastlicense": "2012"
	}`, code)
	return bytes.NewReader([]byte(body))
}

func callInLoop(codes []string, f func(code string) int64) {
	shuffled := make([]string, len(codes))
	copy(shuffled, codes)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var duration int64
	for _, code := range shuffled {
		duration += f(code)
	}
	fmt.Printf("%10d", duration/int64(len(codes)*1000))
}

func createRandomSliceWithCodes(loops int) []string {
	codes := make([]string, 0, loops)
	for i := 0; i < loops; i++ {
		codes = append(codes, fmt.Sprintf("%06d", i+1))
	}
	return codes
}

func sendCollectionRequest(bodyReader io.Reader) int64 {
	requestURL := fmt.Sprintf("http://localhost:%d/members", serverPort)
	_, duration := sendRequest(http.MethodPost, requestURL, bodyReader)
	return duration
}

func sendItemRequest(code string, method string, bodyReader io.Reader) int64 {
	requestURL := fmt.Sprintf("http://localhost:%d/members/%s", serverPort, code)
	_, duration := sendRequest(method, requestURL, bodyReader)
	return duration
}

func sendRequest(method string, requestURL string, bodyReader io.Reader) ([]byte, int64) {
	req, err := http.NewRequest(method, requestURL, bodyReader)
	if err != nil {
		fmt.Println("could not create request", err)
		panic(err)
	}
	before := time.Now().UnixNano()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("error making http request", err)
		panic(err)
	}
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		fmt.Println("could not read response body", err)
		panic(err)
	}
	after := time.Now().UnixNano()
	return resBody, after - before
}
