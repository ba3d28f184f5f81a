// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt wraps line-edited terminal input for the interactive
// approval flow: yes/no confirmations, keyed choices, and in-place
// editing with a prefilled suggestion.
package prompt
