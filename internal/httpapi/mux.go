package httpapi

import (
	"database/sql"
	"net/http"
	"time"
)

func NewMux(db *sql.DB, queryTimeout time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, queryTimeout)
	return mux
}
