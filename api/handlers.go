package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stupid-simple/patchwatch/database"
	"github.com/stupid-simple/patchwatch/version"
)

type handler struct {
	store Store
}

type versionResponse struct {
	Version string          `json:"version"`
	SortKey int64           `json:"sort_key"`
	Patches []patchResponse `json:"patches"`
}

type patchResponse struct {
	database.Patch
	PreviousVersion *string `json:"previous_version,omitempty"`
}

type repositoryVersionsResponse struct {
	Repository database.Repository `json:"repository"`
	Versions   []versionResponse   `json:"versions"`
}

type repositoryVersionResponse struct {
	Repository database.Repository `json:"repository"`
	versionResponse
}

// GET /api/repositories
func (h *handler) listRepositories(c echo.Context) error {
	repos, err := h.store.ListRepositories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, repos)
}

// GET /api/versions/:slug?limit=&offset=&order=newest|oldest
func (h *handler) listVersions(c echo.Context) error {
	ctx := c.Request().Context()

	var limit, offset int
	order := string(database.FindVersionsOrderByNewest)
	err := echo.QueryParamsBinder(c).
		Int("limit", &limit).
		Int("offset", &offset).
		String("order", &order).
		BindError()
	if err != nil {
		return err
	}
	if limit < 0 || offset < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "limit and offset must not be negative")
	}
	if order != string(database.FindVersionsOrderByNewest) && order != string(database.FindVersionsOrderByOldest) {
		return echo.NewHTTPError(http.StatusBadRequest, "order must be newest or oldest")
	}

	repo, err := h.store.GetRepository(ctx, c.Param("slug"))
	if err != nil {
		return notFound(err)
	}

	versions, err := h.store.FindVersions(ctx, repo.ID,
		database.WithFindVersionsLimit(limit),
		database.WithFindVersionsOffset(offset),
		database.WithFindVersionsOrderBy(database.FindVersionsOrderBy(order)),
	)
	if err != nil {
		return err
	}

	versionIDs := make([]uint, 0, len(versions))
	for _, v := range versions {
		versionIDs = append(versionIDs, v.ID)
	}
	patches, err := h.store.FindVersionPatches(ctx, versionIDs)
	if err != nil {
		return err
	}
	byVersion := make(map[uint][]patchResponse, len(versions))
	for _, p := range patches {
		byVersion[p.VersionID] = append(byVersion[p.VersionID], patchResponse{Patch: p})
	}

	resp := repositoryVersionsResponse{
		Repository: *repo,
		Versions:   make([]versionResponse, 0, len(versions)),
	}
	for _, v := range versions {
		vr := versionResponse{Version: v.VersionString, SortKey: v.SortKey, Patches: byVersion[v.ID]}
		if vr.Patches == nil {
			vr.Patches = []patchResponse{}
		}
		resp.Versions = append(resp.Versions, vr)
	}
	return c.JSON(http.StatusOK, resp)
}

// GET /api/versions/:slug/:version
func (h *handler) getVersion(c echo.Context) error {
	ctx := c.Request().Context()

	repo, err := h.store.GetRepository(ctx, c.Param("slug"))
	if err != nil {
		return notFound(err)
	}
	versionString := c.Param("version")
	if canonical, err := version.Canonical(versionString); err == nil {
		versionString = canonical
	}
	v, err := h.store.GetVersion(ctx, repo.ID, versionString)
	if err != nil {
		return notFound(err)
	}

	patches, err := h.store.FindVersionPatches(ctx, []uint{v.ID})
	if err != nil {
		return err
	}

	resp := repositoryVersionResponse{
		Repository: *repo,
		versionResponse: versionResponse{
			Version: v.VersionString,
			SortKey: v.SortKey,
			Patches: make([]patchResponse, 0, len(patches)),
		},
	}
	for _, p := range patches {
		pr := patchResponse{Patch: p}

		chain, err := h.store.GetChain(ctx, p.ID)
		if err != nil {
			return err
		}
		if chain != nil && chain.PreviousPatchID != nil {
			prev, err := h.store.GetPatch(ctx, *chain.PreviousPatchID)
			if err != nil {
				return err
			}
			pr.PreviousVersion = &prev.Version.VersionString
		}
		resp.Patches = append(resp.Patches, pr)
	}
	return c.JSON(http.StatusOK, resp)
}
