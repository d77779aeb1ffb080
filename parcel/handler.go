package parcel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/eudr-packhouse/parcel-ingester/common"
	db "github.com/eudr-packhouse/parcel-ingester/interface/database"
	"github.com/eudr-packhouse/parcel-ingester/processor"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxMemory = 32 << 20

func (s *Service) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/parcels", s.ListParcelsHandler).Methods("GET")
	r.HandleFunc("/parcels", s.CreateParcelHandler).Methods("POST")
	r.HandleFunc("/parcels/validate", s.ValidateHandler).Methods("POST")
	r.HandleFunc("/parcels/{uuid}", s.GetParcelHandler).Methods("GET")
	r.HandleFunc("/parcels/{uuid}/geojson", s.GetGeoJSONHandler).Methods("GET")
	r.HandleFunc("/parcels/{uuid}", s.UpdateParcelHandler).Methods("PUT")
	r.HandleFunc("/parcels/{uuid}", s.DeleteParcelHandler).Methods("DELETE")
	return r
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type parcelResponse struct {
	common.Parcel
	Recomputing bool `json:"recomputing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports the error to the user: domain errors are 400 with their kind and message
func writeError(w http.ResponseWriter, req *http.Request, err error) {
	var serr *service.Error
	var errInput ErrInvalidInput
	switch {
	case errors.As(err, &serr):
		log.Logger(req.Context()).Info("rejected upload", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: serr.Kind.String(), Message: serr.Message})
	case errors.As(err, &errInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "Input", Message: errInput.Msg})
	case errors.As(err, &db.ErrNotFound{}), errors.As(err, &ErrNoGeometry{}):
		w.WriteHeader(http.StatusNotFound)
	default:
		log.Logger(req.Context()).Sugar().Warnf("%s %s: %v", req.Method, req.URL.Path, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "%v", err)
	}
}

// upload returns the file of the multipart form, if any. The caller must close it.
func upload(req *http.Request) (*processor.Upload, func(), error) {
	f, header, err := req.FormFile("file")
	if err == nil {
		return &processor.Upload{Reader: f, Filename: header.Filename}, func() { f.Close() }, nil
	}
	if !errors.Is(err, http.ErrMissingFile) {
		return nil, nil, ErrInvalidInput{fmt.Sprintf("file: %v", err)}
	}
	if url := req.FormValue("source_url"); url != "" {
		return &processor.Upload{URL: url}, func() {}, nil
	}
	return nil, func() {}, nil
}

// CreateParcelHandler creates a parcel from a multipart form (file, source_url or geometry; name; record_type; srid)
func (s *Service) CreateParcelHandler(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, req, ErrInvalidInput{fmt.Sprintf("multipart form: %v", err)})
		return
	}
	in := Input{Name: req.FormValue("name"), RecordType: common.RecordTypeParcel}
	if rt := req.FormValue("record_type"); rt != "" {
		var err error
		if in.RecordType, err = common.RecordTypeString(rt); err != nil {
			writeError(w, req, ErrInvalidInput{err.Error()})
			return
		}
	}
	if srid := req.FormValue("srid"); srid != "" {
		var err error
		if in.GeometrySRID, err = strconv.Atoi(srid); err != nil {
			writeError(w, req, ErrInvalidInput{fmt.Sprintf("srid: %v", err)})
			return
		}
	}
	if g := req.FormValue("geometry"); g != "" {
		in.Geometry = []byte(g)
	}
	file, closeFile, err := upload(req)
	if err != nil {
		writeError(w, req, err)
		return
	}
	defer closeFile()
	in.File = file

	p, err := s.Create(req.Context(), in)
	if err != nil {
		writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, parcelResponse{Parcel: p})
}

// ValidateHandler checks the uploaded file
func (s *Service) ValidateHandler(w http.ResponseWriter, req *http.Request) {
	f, header, err := req.FormFile("file")
	if err != nil {
		writeError(w, req, ErrInvalidInput{fmt.Sprintf("file: %v", err)})
		return
	}
	defer f.Close()
	if err := s.Validate(req.Context(), f, header.Filename); err != nil {
		writeError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetParcelHandler retrieves a parcel
func (s *Service) GetParcelHandler(w http.ResponseWriter, req *http.Request) {
	uuid := mux.Vars(req)["uuid"]
	p, err := s.Get(req.Context(), uuid)
	if err != nil {
		writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, parcelResponse{Parcel: p, Recomputing: s.Recomputing(uuid)})
}

// GetGeoJSONHandler retrieves the geometry of a parcel as a GeoJSON Feature in EPSG:4326
func (s *Service) GetGeoJSONHandler(w http.ResponseWriter, req *http.Request) {
	f, err := s.GeoJSON(req.Context(), mux.Vars(req)["uuid"])
	if err != nil {
		writeError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(f)
}

// ListParcelsHandler lists the parcels (query parameters: name, record_type, page, limit)
func (s *Service) ListParcelsHandler(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	var recordType *common.RecordType
	if rt := q.Get("record_type"); rt != "" {
		r, err := common.RecordTypeString(rt)
		if err != nil {
			writeError(w, req, ErrInvalidInput{err.Error()})
			return
		}
		recordType = &r
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = 100
	}
	parcels, err := s.List(req.Context(), q.Get("name"), recordType, page, limit)
	if err != nil {
		writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, parcels)
}

// UpdateParcelHandler renames a parcel and/or replaces its file (multipart form: name, file or source_url)
func (s *Service) UpdateParcelHandler(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, req, ErrInvalidInput{fmt.Sprintf("multipart form: %v", err)})
		return
	}
	var in UpdateInput
	if names, ok := req.MultipartForm.Value["name"]; ok && len(names) > 0 {
		in.Name = &names[0]
	}
	file, closeFile, err := upload(req)
	if err != nil {
		writeError(w, req, err)
		return
	}
	defer closeFile()
	in.File = file

	p, err := s.Update(req.Context(), mux.Vars(req)["uuid"], in)
	if err != nil {
		writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, parcelResponse{Parcel: p})
}

// DeleteParcelHandler deletes a parcel and its file
func (s *Service) DeleteParcelHandler(w http.ResponseWriter, req *http.Request) {
	if err := s.Delete(req.Context(), mux.Vars(req)["uuid"]); err != nil {
		writeError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
