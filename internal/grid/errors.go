// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package grid

import (
	"errors"
	"fmt"
)

// Matches every ConfigurationError via errors.Is
var ErrConfiguration = errors.New("invalid configuration")

// Invalid caller input, e.g. an even kernel size or an empty window size range.
// Raised before any computation starts. Never transient, so never worth a retry.
type ConfigurationError struct {
	Param  string
	Reason string
}

func NewConfigurationError(param, reason string) *ConfigurationError {
	return &ConfigurationError{Param: param, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
