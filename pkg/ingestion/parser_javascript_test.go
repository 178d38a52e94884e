// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/store"
)

// TestJSParser_ExportsAndClasses verifies export detection, class methods,
// and const/arrow classification.
func TestJSParser_ExportsAndClasses(t *testing.T) {
	fp := parseSource(t, "api.js", `import { request } from "./http";

export function getUser(id) {
  return request("/users/" + id);
}

export default class ApiClient {
  send(path) {
    return request(path);
  }
}

const MAX_RETRIES = 3;
const fetchAll = async () => request("/all");
let counter = 0;
`)
	require.Equal(t, LangJavaScript, fp.Language)

	getUser := findDef(fp, "getUser")
	require.NotNil(t, getUser)
	assert.Equal(t, store.KindFunction, getUser.Kind)
	assert.True(t, getUser.IsExported)
	assert.False(t, getUser.IsDefaultExport)

	apiClient := findDef(fp, "ApiClient")
	require.NotNil(t, apiClient)
	assert.Equal(t, store.KindClass, apiClient.Kind)
	assert.True(t, apiClient.IsDefaultExport)

	send := findDef(fp, "send")
	require.NotNil(t, send)
	assert.Equal(t, store.KindMethod, send.Kind)

	maxRetries := findDef(fp, "MAX_RETRIES")
	require.NotNil(t, maxRetries)
	assert.Equal(t, store.KindConstant, maxRetries.Kind)

	fetchAll := findDef(fp, "fetchAll")
	require.NotNil(t, fetchAll)
	assert.Equal(t, store.KindFunction, fetchAll.Kind)

	counter := findDef(fp, "counter")
	require.NotNil(t, counter)
	assert.Equal(t, store.KindVariable, counter.Kind)

	require.Len(t, fp.Imports, 1)
	assert.Equal(t, "./http", fp.Imports[0].Path)
}

// TestTSParser_Declarations verifies interface, type alias, and enum
// extraction from TypeScript.
func TestTSParser_Declarations(t *testing.T) {
	fp := parseSource(t, "model.ts", `export interface User {
  id: number;
  name: string;
}

type UserID = number;

export enum Role {
  Admin,
  Member,
}

export const lookup = (id: UserID): User | undefined => undefined;
`)
	require.Equal(t, LangTypeScript, fp.Language)

	user := findDef(fp, "User")
	require.NotNil(t, user)
	assert.Equal(t, store.KindInterface, user.Kind)
	assert.True(t, user.IsExported)

	userID := findDef(fp, "UserID")
	require.NotNil(t, userID)
	assert.Equal(t, store.KindTypeAlias, userID.Kind)

	role := findDef(fp, "Role")
	require.NotNil(t, role)
	assert.Equal(t, store.KindEnum, role.Kind)

	lookup := findDef(fp, "lookup")
	require.NotNil(t, lookup)
	assert.Equal(t, store.KindFunction, lookup.Kind)
}

// TestJSParser_Occurrences verifies call and constructor occurrences.
func TestJSParser_Occurrences(t *testing.T) {
	fp := parseSource(t, "main.js", `function boot() {
  const c = new Engine();
  c.start();
  helper();
}
`)
	names := map[string]bool{}
	for _, occ := range fp.Occurrences {
		names[occ.Name] = true
	}
	assert.True(t, names["Engine"])
	assert.True(t, names["start"])
	assert.True(t, names["helper"])
}
