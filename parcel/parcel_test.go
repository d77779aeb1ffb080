package parcel_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/crs"
	db "github.com/eudr-packhouse/parcel-ingester/interface/database"
	"github.com/eudr-packhouse/parcel-ingester/parcel"
	"github.com/eudr-packhouse/parcel-ingester/pipeline"
	"github.com/eudr-packhouse/parcel-ingester/processor"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/paulmach/orb"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const plotsGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[10,10],[10.01,10],[10.01,10.01],[10,10.01],[10,10]]]}},
	{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Polygon","coordinates":[[[10.02,10],[10.03,10],[10.03,10.01],[10.02,10]]]}}]}`

const otherPlotGeoJSON = `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[20,20],[20.01,20],[20.01,20.01],[20,20]]]}}`

const pointsGeoJSON = `{"type":"Feature","properties":{},"geometry":{"type":"MultiPoint","coordinates":[[10,10],[11,11]]}}`

func geojsonUpload(content string) *processor.Upload {
	return &processor.Upload{Reader: strings.NewReader(content), Filename: "plots.geojson"}
}

var _ = Describe("Parcel", func() {
	var (
		ctx         = context.Background()
		backend     *memDB
		storageRoot string
		workdir     string
		events      *MokePublisher
		svc         *parcel.Service
	)

	BeforeEach(func() {
		var err error
		backend = newMemDB()
		events = &MokePublisher{}
		storageRoot, err = os.MkdirTemp("", "storage")
		Expect(err).NotTo(HaveOccurred())
		workdir, err = os.MkdirTemp("", "workdir")
		Expect(err).NotTo(HaveOccurred())
		storage, err := service.NewStorageStrategy(ctx, storageRoot)
		Expect(err).NotTo(HaveOccurred())
		svc = parcel.NewService(backend, storage, events, workdir, pipeline.Options{})
	})

	AfterEach(func() {
		entries, err := os.ReadDir(workdir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty(), "working directory must be cleaned")
		os.RemoveAll(storageRoot)
		os.RemoveAll(workdir)
	})

	Describe("Creating a parcel", func() {
		var (
			in  parcel.Input
			p   common.Parcel
			err error
		)
		BeforeEach(func() {
			in = parcel.Input{Name: "farm", RecordType: common.RecordTypeParcel}
		})
		JustBeforeEach(func() {
			p, err = svc.Create(ctx, in)
		})

		Context("from a GeoJSON file", func() {
			BeforeEach(func() {
				in.File = geojsonUpload(plotsGeoJSON)
			})
			It("should derive a MultiPolygon in EPSG:3857", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Geom).To(HavePrefix("MULTIPOLYGON"))
				Expect(p.SRID).To(Equal(crs.WebMercator))
				Expect(p.BufferExtent).NotTo(BeNil())
			})
			It("should persist the record", func() {
				stored, err := backend.ReadParcel(ctx, p.UUID, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Geom).To(Equal(p.Geom))
				Expect(stored.File).To(Equal(p.File))
				Expect(stored.Name).To(Equal("farm"))
			})
			It("should store the normalized file only", func() {
				Expect(storedFiles(storageRoot)).To(Equal([]string{p.File}))
				Expect(p.File).To(HavePrefix("parcels/" + p.UUID + "/"))
			})
			It("should publish an event", func() {
				Expect(events.Messages()).To(HaveLen(1))
				var evt common.GeometryUpdated
				Expect(json.Unmarshal(events.Messages()[0], &evt)).To(Succeed())
				Expect(evt.UUID).To(Equal(p.UUID))
				Expect(evt.SRID).To(Equal(crs.WebMercator))
				Expect(evt.BufferExtent).To(Equal(*p.BufferExtent))
			})
		})

		Context("from a geometry", func() {
			BeforeEach(func() {
				in.RecordType = common.RecordTypeOperatorParcel
				in.Geometry = []byte("POLYGON ((10 10,10.01 10,10.01 10.01,10 10))")
			})
			It("should derive the geometry without file", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(p.File).To(BeEmpty())
				Expect(p.Geom).To(HavePrefix("MULTIPOLYGON"))
				Expect(p.SRID).To(Equal(crs.WebMercator))
				Expect(storedFiles(storageRoot)).To(BeEmpty())
			})
		})

		Context("from both a file and a geometry", func() {
			BeforeEach(func() {
				in.File = geojsonUpload(plotsGeoJSON)
				in.Geometry = []byte("POLYGON ((10 10,10.01 10,10.01 10.01,10 10))")
			})
			It("should be rejected", func() {
				Expect(errors.As(err, &parcel.ErrInvalidInput{})).To(BeTrue())
				Expect(backend.Count()).To(Equal(0))
			})
		})

		Context("from nothing", func() {
			It("should be rejected", func() {
				Expect(errors.As(err, &parcel.ErrInvalidInput{})).To(BeTrue())
				Expect(backend.Count()).To(Equal(0))
			})
		})

		Context("from a file of points", func() {
			BeforeEach(func() {
				in.File = geojsonUpload(pointsGeoJSON)
			})
			It("should return a geometry type error and persist nothing", func() {
				Expect(service.ErrorKind(err)).To(Equal(service.KindGeometryType))
				Expect(backend.Count()).To(Equal(0))
				Expect(storedFiles(storageRoot)).To(BeEmpty())
				Expect(events.Messages()).To(BeEmpty())
			})
		})

		Context("when the transaction fails", func() {
			BeforeEach(func() {
				in.File = geojsonUpload(plotsGeoJSON)
				backend.hooks.commitErr = fmt.Errorf("connection lost")
			})
			It("should remove the stored file", func() {
				Expect(err).To(HaveOccurred())
				Expect(backend.Count()).To(Equal(0))
				Expect(storedFiles(storageRoot)).To(BeEmpty())
			})
		})

		Context("when the geometry cannot be persisted", func() {
			BeforeEach(func() {
				in.File = geojsonUpload(plotsGeoJSON)
				backend.hooks.setGeometryErr = fmt.Errorf("invalid geometry")
			})
			It("should remove the stored file", func() {
				Expect(err).To(HaveOccurred())
				Expect(backend.Count()).To(Equal(0))
				Expect(storedFiles(storageRoot)).To(BeEmpty())
			})
		})

		Context("when the events cannot be published", func() {
			BeforeEach(func() {
				in.File = geojsonUpload(plotsGeoJSON)
				events.err = service.MakeFatal(fmt.Errorf("topic not found"))
			})
			It("should create the parcel anyway", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(backend.Count()).To(Equal(1))
			})
		})
	})

	Describe("Updating a parcel", func() {
		var created common.Parcel

		BeforeEach(func() {
			var err error
			created, err = svc.Create(ctx, parcel.Input{Name: "farm", File: geojsonUpload(plotsGeoJSON)})
			Expect(err).NotTo(HaveOccurred())
			Expect(backend.hooks.SetGeometryCalls()).To(Equal(1))
		})

		Context("without a new file", func() {
			It("should not derive the geometry again", func() {
				name := "renamed"
				p, err := svc.Update(ctx, created.UUID, parcel.UpdateInput{Name: &name})
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Name).To(Equal("renamed"))
				Expect(p.Geom).To(Equal(created.Geom))
				Expect(p.File).To(Equal(created.File))
				Expect(*p.BufferExtent).To(Equal(*created.BufferExtent))
				Expect(backend.hooks.SetGeometryCalls()).To(Equal(1))
				Expect(events.Messages()).To(HaveLen(1))
				Expect(storedFiles(storageRoot)).To(Equal([]string{created.File}))
			})
			It("should be idempotent", func() {
				for i := 0; i < 3; i++ {
					_, err := svc.Update(ctx, created.UUID, parcel.UpdateInput{})
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(backend.hooks.SetGeometryCalls()).To(Equal(1))
			})
		})

		Context("with a new file", func() {
			It("should derive the geometry and replace the file", func() {
				p, err := svc.Update(ctx, created.UUID, parcel.UpdateInput{File: geojsonUpload(otherPlotGeoJSON)})
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Geom).NotTo(Equal(created.Geom))
				Expect(p.File).NotTo(Equal(created.File))
				Expect(storedFiles(storageRoot)).To(Equal([]string{p.File}))
				Expect(events.Messages()).To(HaveLen(2))
			})
		})

		Context("with an invalid file", func() {
			It("should keep the previous geometry and file", func() {
				_, err := svc.Update(ctx, created.UUID, parcel.UpdateInput{File: geojsonUpload(pointsGeoJSON)})
				Expect(service.ErrorKind(err)).To(Equal(service.KindGeometryType))
				p, err := svc.Get(ctx, created.UUID)
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Geom).To(Equal(created.Geom))
				Expect(storedFiles(storageRoot)).To(Equal([]string{created.File}))
			})
		})

		Context("concurrently", func() {
			It("should serialize the derivations", func() {
				var wg sync.WaitGroup
				errs := make([]error, 4)
				for i := range errs {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						content := plotsGeoJSON
						if i%2 == 1 {
							content = otherPlotGeoJSON
						}
						_, errs[i] = svc.Update(ctx, created.UUID, parcel.UpdateInput{File: geojsonUpload(content)})
					}(i)
				}
				wg.Wait()
				for _, err := range errs {
					Expect(err).NotTo(HaveOccurred())
				}
				p, err := svc.Get(ctx, created.UUID)
				Expect(err).NotTo(HaveOccurred())
				Expect(storedFiles(storageRoot)).To(Equal([]string{p.File}))
				Expect(svc.Recomputing(created.UUID)).To(BeFalse())
			})
		})

		Context("that does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := svc.Update(ctx, "unknown", parcel.UpdateInput{})
				Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
			})
		})
	})

	Describe("Deleting a parcel", func() {
		It("should delete the record and its file", func() {
			p, err := svc.Create(ctx, parcel.Input{Name: "farm", File: geojsonUpload(plotsGeoJSON)})
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Delete(ctx, p.UUID)).To(Succeed())
			Expect(backend.Count()).To(Equal(0))
			Expect(storedFiles(storageRoot)).To(BeEmpty())
			_, err = svc.Get(ctx, p.UUID)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})

	Describe("Exporting a parcel as GeoJSON", func() {
		It("should return the geometry in EPSG:4326", func() {
			p, err := svc.Create(ctx, parcel.Input{Name: "farm", File: geojsonUpload(plotsGeoJSON)})
			Expect(err).NotTo(HaveOccurred())
			f, err := svc.GeoJSON(ctx, p.UUID)
			Expect(err).NotTo(HaveOccurred())
			mp, ok := f.Geometry.(orb.MultiPolygon)
			Expect(ok).To(BeTrue())
			Expect(mp).To(HaveLen(2))
			bound := mp.Bound()
			Expect(bound.Min[0]).To(BeNumerically("~", 10, 1e-6))
			Expect(bound.Min[1]).To(BeNumerically("~", 10, 1e-6))
			Expect(bound.Max[0]).To(BeNumerically("~", 10.03, 1e-6))
			Expect(f.Properties["name"]).To(Equal("farm"))
		})
	})

	Describe("HTTP API", func() {
		var handler http.Handler

		BeforeEach(func() {
			handler = svc.NewHandler()
		})

		multipartRequest := func(method, url string, fields map[string]string, filename, content string) *http.Request {
			body := &bytes.Buffer{}
			w := multipart.NewWriter(body)
			for k, v := range fields {
				w.WriteField(k, v)
			}
			if filename != "" {
				fw, err := w.CreateFormFile("file", filename)
				Expect(err).NotTo(HaveOccurred())
				fw.Write([]byte(content))
			}
			Expect(w.Close()).To(Succeed())
			req := httptest.NewRequest(method, url, body)
			req.Header.Set("Content-Type", w.FormDataContentType())
			return req
		}

		It("should create, get and delete a parcel", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("POST", "/parcels", map[string]string{"name": "farm", "record_type": "OperatorParcel"}, "plots.geojson", plotsGeoJSON))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var p common.Parcel
			Expect(json.Unmarshal(rec.Body.Bytes(), &p)).To(Succeed())
			Expect(p.RecordType).To(Equal(common.RecordTypeOperatorParcel))
			Expect(p.Geom).To(HavePrefix("MULTIPOLYGON"))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/parcels/"+p.UUID, nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/parcels/"+p.UUID+"/geojson", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"MultiPolygon"`))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/parcels?record_type=OperatorParcel", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			var parcels []common.Parcel
			Expect(json.Unmarshal(rec.Body.Bytes(), &parcels)).To(Succeed())
			Expect(parcels).To(HaveLen(1))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("DELETE", "/parcels/"+p.UUID, nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/parcels/"+p.UUID, nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should rename a parcel without deriving its geometry", func() {
			p, err := svc.Create(ctx, parcel.Input{Name: "farm", File: geojsonUpload(plotsGeoJSON)})
			Expect(err).NotTo(HaveOccurred())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("PUT", "/parcels/"+p.UUID, map[string]string{"name": "renamed"}, "", ""))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(backend.hooks.SetGeometryCalls()).To(Equal(1))
		})

		It("should report the kind and the message of a rejected upload", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("POST", "/parcels", map[string]string{"name": "farm"}, "points.geojson", pointsGeoJSON))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			var resp map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(Equal(map[string]string{"kind": "GeometryType", "message": service.MsgInvalidGeometryType}))
			Expect(backend.Count()).To(Equal(0))
		})

		It("should validate a file", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("POST", "/parcels/validate", nil, "plots.geojson", plotsGeoJSON))
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("POST", "/parcels/validate", nil, "plots.kml", "<kml/>"))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			var resp map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["kind"]).To(Equal("Format"))
			Expect(resp["message"]).To(Equal(service.MsgUnsupportedExtension))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("POST", "/parcels/validate", nil, "plots.gpkg", "not a geopackage"))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["message"]).To(Equal(service.MsgInvalidFormat))
		})

		It("should reject a creation with both a file and a geometry", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, multipartRequest("POST", "/parcels", map[string]string{"geometry": "POLYGON ((0 0,1 0,1 1,0 0))"}, "plots.geojson", plotsGeoJSON))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(`"Input"`))
		})
	})
})
