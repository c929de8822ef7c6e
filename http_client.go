package main

import (
	"net/http"
	"time"
)

// Model responses for a full paper review can take a while to stream;
// 120s matches what judge calls need on the slower models.
const externalHTTPTimeout = 120 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}
