package mitre

import (
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

// ErrMalformedCatalog is returned when the bundle has no objects array.
var ErrMalformedCatalog = errors.New("malformed catalog: missing objects array")

type stixObject struct {
	Type              string `json:"type"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	XMitreShortName   string `json:"x_mitre_shortname"`
	XMitreVersion     string `json:"x_mitre_version"`
	XMitreDetection   string `json:"x_mitre_detection"`
	XMitreDataSources []string `json:"x_mitre_data_sources"`
	XMitrePlatforms   []string `json:"x_mitre_platforms"`
	Revoked           bool   `json:"revoked"`
	RelationshipType  string `json:"relationship_type"`
	SourceRef         string `json:"source_ref"`
	TargetRef         string `json:"target_ref"`
	KillChainPhases   []struct {
		KillChainName string `json:"kill_chain_name"`
		PhaseName     string `json:"phase_name"`
	} `json:"kill_chain_phases"`
	ExternalReferences []struct {
		SourceName string `json:"source_name"`
		ExternalID string `json:"external_id"`
		URL        string `json:"url"`
	} `json:"external_references"`
}

type stixBundle struct {
	SpecVersion string       `json:"spec_version"`
	Objects     []stixObject `json:"objects"`
}

// ParseBundle parses a MITRE ATT&CK STIX bundle into a TechniqueIndex and
// its version string. Unknown STIX object types are silently ignored; a
// sub-technique whose parent chain ultimately resolves back to itself is
// dropped and logged as a warning.
func ParseBundle(raw []byte) (*TechniqueIndex, string, error) {
	var bundle stixBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, "", ErrMalformedCatalog
	}
	if bundle.Objects == nil {
		return nil, "", ErrMalformedCatalog
	}

	tactics := map[string]string{} // stix-id -> shortname
	techniques := map[string]Technique{}
	techniqueStixID := map[string]string{} // stix-id -> external id
	mitigationsByStixID := map[string]stixObject{}
	var relationships []stixObject
	version := bundle.SpecVersion

	for _, obj := range bundle.Objects {
		switch obj.Type {
		case "x-mitre-tactic":
			short := obj.XMitreShortName
			if short == "" {
				short = kebabCase(obj.Name)
			}
			tactics[obj.ID] = short
			if version == "" && obj.XMitreVersion != "" {
				version = obj.XMitreVersion
			}
		case "course-of-action":
			mitigationsByStixID[obj.ID] = obj
		case "relationship":
			relationships = append(relationships, obj)
		case "attack-pattern":
			if obj.Revoked {
				continue
			}
			extID := externalID(obj)
			if extID == "" {
				continue
			}
			var tacticNames []string
			for _, kcp := range obj.KillChainPhases {
				if kcp.KillChainName != "mitre-attack" && kcp.KillChainName != "mitre-mobile-attack" && kcp.KillChainName != "mitre-ics-attack" {
					continue
				}
				tacticNames = append(tacticNames, kcp.PhaseName)
			}
			parentID := ""
			if idx := strings.IndexByte(extID, '.'); idx >= 0 {
				parentID = extID[:idx]
			}
			url := ""
			for _, ref := range obj.ExternalReferences {
				if ref.SourceName == "mitre-attack" {
					url = ref.URL
					break
				}
			}
			t := Technique{
				ID:          extID,
				Name:        obj.Name,
				Description: obj.Description,
				Tactics:     tacticNames,
				Platforms:   obj.XMitrePlatforms,
				DataSources: obj.XMitreDataSources,
				Detection:   obj.XMitreDetection,
				URL:         url,
				ParentID:    parentID,
			}
			techniques[extID] = t
			techniqueStixID[obj.ID] = extID
			if version == "" && obj.XMitreVersion != "" {
				version = obj.XMitreVersion
			}
		}
	}

	// Attach mitigations via "mitigates" relationships.
	for _, rel := range relationships {
		if rel.RelationshipType != "mitigates" {
			continue
		}
		targetExtID, ok := techniqueStixID[rel.TargetRef]
		if !ok {
			continue
		}
		moa, ok := mitigationsByStixID[rel.SourceRef]
		if !ok {
			continue
		}
		t := techniques[targetExtID]
		t.Mitigations = append(t.Mitigations, Mitigation{
			ID:          rel.SourceRef,
			Name:        moa.Name,
			Description: moa.Description,
		})
		techniques[targetExtID] = t
	}

	dropCyclicSubTechniques(techniques)
	groupSubTechniques(techniques)
	deriveKeywords(techniques)

	byID := make(map[string]Technique, len(techniques))
	byTactic := map[string][]string{}
	for id, t := range techniques {
		byID[id] = t
		for _, tac := range t.Tactics {
			byTactic[tac] = append(byTactic[tac], id)
		}
	}

	if version == "" {
		version = "unknown"
	}
	return &TechniqueIndex{Version: version, ByID: byID, ByTactic: byTactic}, version, nil
}

// dropCyclicSubTechniques removes any technique whose parent chain loops
// back to itself instead of terminating at a top-level technique.
func dropCyclicSubTechniques(techniques map[string]Technique) {
	var cyclicIDs []string
	for id, t := range techniques {
		if t.ParentID == "" {
			continue
		}
		seen := map[string]bool{id: true}
		cur := t.ParentID
		cyclic := false
		for cur != "" {
			if seen[cur] {
				cyclic = true
				break
			}
			seen[cur] = true
			parent, ok := techniques[cur]
			if !ok {
				break
			}
			cur = parent.ParentID
		}
		if cyclic {
			cyclicIDs = append(cyclicIDs, id)
		}
	}
	for _, id := range cyclicIDs {
		slog.Warn("dropping technique with cyclic parent chain", "id", id)
		delete(techniques, id)
	}
}

func groupSubTechniques(techniques map[string]Technique) {
	for id, t := range techniques {
		if t.ParentID == "" {
			continue
		}
		parent, ok := techniques[t.ParentID]
		if !ok {
			continue
		}
		parent.SubTechniqueIDs = append(parent.SubTechniqueIDs, id)
		techniques[t.ParentID] = parent
	}
}

func externalID(obj stixObject) string {
	for _, ref := range obj.ExternalReferences {
		if ref.SourceName == "mitre-attack" && strings.HasPrefix(ref.ExternalID, "T") {
			return ref.ExternalID
		}
	}
	return ""
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func kebabCase(name string) string {
	s := strings.ToLower(name)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
